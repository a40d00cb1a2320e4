package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Domenick1991/staybooking/internal/domain"
)

// SolrIndex applies availability snapshots to unit documents with atomic updates.
// Documents are keyed "unit-<id>". A snapshot that is not newer than the stored availability_version
// is skipped, so replays and reordered deliveries leave the document as it is.
type SolrIndex struct {
	baseURL    string
	httpClient *http.Client
}

func NewSolrIndex(baseURL, collection string, timeout time.Duration) *SolrIndex {
	return &SolrIndex{
		baseURL:    strings.TrimSuffix(baseURL, "/") + "/" + collection,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type solrUpdateResponse struct {
	ResponseHeader struct {
		Status int `json:"status"`
	} `json:"responseHeader"`
	Error *struct {
		Msg  string `json:"msg"`
		Code int    `json:"code"`
	} `json:"error,omitempty"`
}

type solrGetResponse struct {
	Doc map[string]interface{} `json:"doc"`
}

func (s *SolrIndex) PushAvailability(ctx context.Context, snap *domain.AvailabilitySnapshot) error {
	current, err := s.storedVersion(ctx, snap.UnitID)
	if err != nil {
		return err
	}
	if current >= snap.Version {
		return nil
	}

	ranges := make([]string, 0, len(snap.Ranges))
	for _, r := range snap.Ranges {
		// Solr DateRangeField syntax, end inclusive
		ranges = append(ranges, fmt.Sprintf("[%s TO %s]", r.Start.Format(time.DateOnly), r.End.AddDate(0, 0, -1).Format(time.DateOnly)))
	}

	doc := map[string]interface{}{
		"id":                   docID(snap.UnitID),
		"unit_id":              snap.UnitID,
		"available_ranges":     map[string]interface{}{"set": ranges},
		"available_days":       map[string]interface{}{"set": snap.AvailableDays()},
		"availability_from":    map[string]interface{}{"set": snap.From.Format(time.RFC3339)},
		"availability_to":      map[string]interface{}{"set": snap.To.Format(time.RFC3339)},
		"availability_version": map[string]interface{}{"set": snap.Version},
	}
	return s.update(ctx, []interface{}{doc})
}

// storedVersion reads availability_version through the real-time get handler; 0 when the unit is not indexed.
func (s *SolrIndex) storedVersion(ctx context.Context, unitID int64) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/get?fl=availability_version&id="+docID(unitID), nil)
	if err != nil {
		return 0, fmt.Errorf("error creating request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("error executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("solr returned status %d: %s", resp.StatusCode, string(body))
	}

	// versions are UnixNano values, too large for float64
	var got solrGetResponse
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&got); err != nil {
		return 0, fmt.Errorf("error parsing response: %w", err)
	}
	switch v := got.Doc["availability_version"].(type) {
	case json.Number:
		return v.Int64()
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, nil
	}
}

func (s *SolrIndex) update(ctx context.Context, docs []interface{}) error {
	payload, err := json.Marshal(docs)
	if err != nil {
		return fmt.Errorf("error marshaling update: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/update?commitWithin=1000", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("solr returned status %d: %s", resp.StatusCode, string(body))
	}

	var updateResp solrUpdateResponse
	if err := json.Unmarshal(body, &updateResp); err != nil {
		return fmt.Errorf("error parsing response: %w", err)
	}
	if updateResp.ResponseHeader.Status != 0 {
		return fmt.Errorf("solr update failed with status %d", updateResp.ResponseHeader.Status)
	}
	return nil
}

func docID(unitID int64) string {
	return "unit-" + strconv.FormatInt(unitID, 10)
}
