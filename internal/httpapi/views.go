package httpapi

import (
	"time"

	"github.com/roach88/storekit/internal/store"
	"github.com/roach88/storekit/internal/value"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type createdBody struct {
	ID int64 `json:"id"`
}

type historyView struct {
	Seq         int64        `json:"seq"`
	CommittedAt string       `json:"committedAt"`
	Kind        string       `json:"kind"`
	Version     int64        `json:"version"`
	Fields      value.Object `json:"fields,omitempty"`
}

func newHistoryView(e store.InstanceState) historyView {
	return historyView{
		Seq:         e.Seq,
		CommittedAt: e.CommittedAt.UTC().Format(time.RFC3339Nano),
		Kind:        string(e.Kind),
		Version:     e.Version,
		Fields:      e.Fields,
	}
}

type stateView struct {
	Seq         int64  `json:"seq"`
	TxID        string `json:"txId"`
	CommittedAt string `json:"committedAt"`
	Migration   string `json:"migration,omitempty"`
	Changes     int    `json:"changes"`
}

func newStateView(st store.State) stateView {
	return stateView{
		Seq:         st.Seq,
		TxID:        st.TxID.String(),
		CommittedAt: st.CommittedAt.UTC().Format(time.RFC3339Nano),
		Migration:   st.Migration,
		Changes:     st.Changes,
	}
}

type recordView struct {
	Type    string       `json:"type"`
	ID      int64        `json:"id"`
	Version int64        `json:"version"`
	Fields  value.Object `json:"fields"`
}

type snapshotView struct {
	State     int64        `json:"state"`
	Instances []recordView `json:"instances"`
}

func newRecordView(rec store.Record) recordView {
	return recordView{Type: rec.Alias, ID: rec.ID, Version: rec.Version, Fields: rec.Fields}
}

func newSnapshotView(seq int64, recs []store.Record) snapshotView {
	out := snapshotView{State: seq, Instances: make([]recordView, len(recs))}
	for i, rec := range recs {
		out.Instances[i] = newRecordView(rec)
	}
	return out
}
