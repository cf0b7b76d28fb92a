// Package export renders a day of exchanged documents for operators,
// as JSON or CSV.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/kilianp07/usef/core/model"
)

// Row is the exported view of one document. Bodies are omitted; the
// export is an audit listing, not a replay source.
type Row struct {
	SequenceNumber int64  `json:"sequence_number"`
	DocumentType   string `json:"document_type"`
	Period         string `json:"period"`
	Group          string `json:"group,omitempty"`
	Sender         string `json:"sender"`
	Recipient      string `json:"recipient"`
	Status         string `json:"status"`
}

func rows(docs []model.Document) []Row {
	out := make([]Row, len(docs))
	for i, d := range docs {
		out[i] = Row{
			SequenceNumber: d.SequenceNumber,
			DocumentType:   string(d.Type),
			Period:         d.Period.Format("2006-01-02"),
			Group:          d.ConnectionGroup,
			Sender:         d.Sender.String(),
			Recipient:      d.Recipient.String(),
			Status:         string(d.Status),
		}
	}
	return out
}

// WriteJSON writes the documents to w as a JSON array of rows.
func WriteJSON(w io.Writer, docs []model.Document) error {
	return json.NewEncoder(w).Encode(rows(docs))
}

// WriteCSV writes the documents to w in CSV format with a header row.
func WriteCSV(w io.Writer, docs []model.Document) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"sequence_number", "document_type", "period", "group", "sender", "recipient", "status"}); err != nil {
		return err
	}
	for _, r := range rows(docs) {
		rec := []string{
			strconv.FormatInt(r.SequenceNumber, 10),
			r.DocumentType,
			r.Period,
			r.Group,
			r.Sender,
			r.Recipient,
			r.Status,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// DayLister is the slice of the plan board the export reads.
type DayLister interface {
	DocumentsByDay(period time.Time) ([]model.Document, error)
}

// WriteDay exports the documents of one period in the given format,
// "csv" or "json".
func WriteDay(w io.Writer, store DayLister, period time.Time, format string) error {
	docs, err := store.DocumentsByDay(period)
	if err != nil {
		return err
	}
	if format == "csv" {
		return WriteCSV(w, docs)
	}
	return WriteJSON(w, docs)
}
