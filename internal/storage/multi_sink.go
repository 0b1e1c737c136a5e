package storage

import (
	"errors"
	"fmt"
	"io"
	"log"

	"sold-crawler/pkg/models"
)

// RowSink is anything that can persist a region's rows.
type RowSink interface {
	Save(batch []models.Row) error
}

// MultiSink writes every batch to a primary sink and then to any mirrors.
// Only a primary failure is returned; mirror failures are logged and passed
// to OnMirrorError.
type MultiSink struct {
	primary RowSink
	mirrors []namedSink

	OnMirrorError func(name string, err error)
}

type namedSink struct {
	name string
	sink RowSink
}

func NewMultiSink(primary RowSink) *MultiSink {
	return &MultiSink{primary: primary}
}

// Mirror adds a secondary sink under a name used in logs and metrics.
func (m *MultiSink) Mirror(name string, sink RowSink) {
	m.mirrors = append(m.mirrors, namedSink{name: name, sink: sink})
}

func (m *MultiSink) Save(batch []models.Row) error {
	if err := m.primary.Save(batch); err != nil {
		return err
	}
	for _, mirror := range m.mirrors {
		if err := mirror.sink.Save(batch); err != nil {
			log.Printf("Mirror %s failed to save batch of %d rows: %v", mirror.name, len(batch), err)
			if m.OnMirrorError != nil {
				m.OnMirrorError(mirror.name, err)
			}
		}
	}
	return nil
}

// Close closes every mirror, then the primary, for sinks that need it.
// Mirrors go first so buffered rows are flushed before the run ends.
func (m *MultiSink) Close() error {
	var errs []error
	for _, mirror := range m.mirrors {
		if c, ok := mirror.sink.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %s: %w", mirror.name, err))
			}
		}
	}
	if c, ok := m.primary.(io.Closer); ok {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
