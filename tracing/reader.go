package tracing

import (
	"context"

	"github.com/sarchlab/cosit/datarecording"
)

// EventQuery selects events. Zero fields match everything.
type EventQuery struct {
	Kind  string
	Task  string
	From  uint64
	To    uint64
	Limit int
}

// Reader reads a trace back.
type Reader struct {
	data datarecording.DataReader
}

// NewReader maps the trace tables of data.
func NewReader(data datarecording.DataReader) *Reader {
	data.MapTable(EventTable, Event{})
	data.MapTable(SegmentTable, Segment{})

	return &Reader{data: data}
}

// Events returns the events matching q in time order.
func (r *Reader) Events(ctx context.Context, q EventQuery) ([]Event, error) {
	var conds []datarecording.Cond

	if q.Kind != "" {
		conds = append(conds, datarecording.Eq("Kind", q.Kind))
	}

	if q.Task != "" {
		conds = append(conds, datarecording.Eq("Task", q.Task))
	}

	if q.From > 0 {
		conds = append(conds, datarecording.AtLeast("Time", q.From))
	}

	if q.To > 0 {
		conds = append(conds, datarecording.AtMost("Time", q.To))
	}

	results, err := r.data.Query(ctx, EventTable, datarecording.QueryParams{
		Conds:   conds,
		OrderBy: []string{"Time", "rowid"},
		Limit:   q.Limit,
	})
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(results))
	for _, res := range results {
		events = append(events, *res.(*Event))
	}

	return events, nil
}

// EventCounts returns the number of events of each kind.
func (r *Reader) EventCounts(ctx context.Context) (map[string]int, error) {
	return r.data.CountBy(ctx, EventTable, "Kind")
}

// BusyTime returns the number of ticks each task held the CPU.
func (r *Reader) BusyTime(ctx context.Context) (map[string]uint64, error) {
	results, err := r.data.Query(ctx, SegmentTable,
		datarecording.QueryParams{})
	if err != nil {
		return nil, err
	}

	busy := make(map[string]uint64)
	for _, res := range results {
		s := res.(*Segment)
		busy[s.Task] += s.End - s.Start
	}

	return busy, nil
}
