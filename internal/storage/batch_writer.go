package storage

import (
	"log"
	"time"

	"sold-crawler/pkg/models"
)

// BatchWriter buffers rows for a slow mirror and writes them from its own
// goroutine, either when size rows are waiting or every timeout. Save only
// blocks while the queue of size rows is full; rows are never dropped. Mirror
// errors are not returned from Save; they go to onError.
type BatchWriter struct {
	name    string
	sink    RowSink
	rows    chan models.Row
	done    chan struct{}
	size    int
	timeout time.Duration
	onError func(name string, err error)
}

// NewBatchWriter starts the writer goroutine. Call Close to flush the tail.
func NewBatchWriter(name string, sink RowSink, size int, timeout time.Duration, onError func(name string, err error)) *BatchWriter {
	if size < 1 {
		size = 1
	}
	if timeout <= 0 {
		timeout = time.Second
	}
	b := &BatchWriter{
		name:    name,
		sink:    sink,
		rows:    make(chan models.Row, size),
		done:    make(chan struct{}),
		size:    size,
		timeout: timeout,
		onError: onError,
	}
	go b.run()
	return b
}

func (b *BatchWriter) Save(batch []models.Row) error {
	for _, row := range batch {
		b.rows <- row
	}
	return nil
}

// Close flushes buffered rows and waits for the writer to exit. Save must
// not be called afterwards.
func (b *BatchWriter) Close() error {
	close(b.rows)
	<-b.done
	return nil
}

func (b *BatchWriter) run() {
	defer close(b.done)

	buffer := make([]models.Row, 0, b.size)
	ticker := time.NewTicker(b.timeout)
	defer ticker.Stop()

	flush := func() {
		if len(buffer) == 0 {
			return
		}
		if err := b.sink.Save(buffer); err != nil {
			log.Printf("Batch save to %s failed (%d rows): %v", b.name, len(buffer), err)
			if b.onError != nil {
				b.onError(b.name, err)
			}
		}
		buffer = buffer[:0]
	}

	for {
		select {
		case row, ok := <-b.rows:
			if !ok {
				flush()
				return
			}
			buffer = append(buffer, row)
			if len(buffer) >= b.size {
				flush()
			}

		case <-ticker.C:
			flush()
		}
	}
}
