package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestTransaction_OmitsEmptyStation(t *testing.T) {
	tx := Transaction{
		ID:        "tx-1",
		WalletID:  "w-1",
		Type:      TransactionTopUp,
		Status:    TransactionCompleted,
		Amount:    25,
		CreatedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("failed to marshal: %v", err)
	}
	s := string(data)
	if strings.Contains(s, "station_id") {
		t.Errorf("expected station_id to be omitted for top-up, got: %s", s)
	}
	if !strings.Contains(s, `"created_at":"2025-03-01T10:00:00Z"`) {
		t.Errorf("expected RFC 3339 created_at, got: %s", s)
	}
}

func TestPage_DecodesEnvelope(t *testing.T) {
	body := `{"count": 57, "has_more": true, "results": [
		{"id": "st-001", "name": "Harbor Fast", "city": "Oslo", "status": "available",
		 "connector_type": "ccs", "power_kw": 150, "updated_at": "2025-03-01T10:00:00Z"}]}`

	var page Page[Station]
	if err := json.Unmarshal([]byte(body), &page); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if page.Count != 57 || !page.HasMore || len(page.Results) != 1 {
		t.Fatalf("unexpected envelope: %+v", page)
	}
	st := page.Results[0]
	if st.GetID() != "st-001" || st.PowerKW != 150 || st.ConnectorType != ConnectorCCS {
		t.Errorf("unexpected station: %+v", st)
	}
}
