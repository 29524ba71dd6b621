package audit

import "context"

// MultiSink fans an event out to every sink. All sinks are attempted; the
// first error is returned.
type MultiSink []Sink

func (m MultiSink) Record(ctx context.Context, e Event) error {
	e, err := Normalize(ctx, e)
	if err != nil {
		return err
	}
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, e); err != nil && first == nil {
			first = err
		}
	}
	return first
}
