package realtime

import (
	"fmt"
	"os"
	"sync"
	"time"
)

// DefaultPCMBufferSize is how much audio is held before it is appended to disk.
const DefaultPCMBufferSize = 64 * 1024

// PCMWriter accumulates raw PCM frames and appends them to one capture file.
// A disabled writer accepts and discards everything.
type PCMWriter struct {
	mu         sync.Mutex
	enabled    bool
	bufferSize int
	buf        []byte
	fileName   string
}

// NewPCMWriter creates a writer whose file is <prefix>_<YYYYmmdd_HHMMSS>.pcm.
// A non-positive bufferSize selects DefaultPCMBufferSize.
func NewPCMWriter(prefix string, enabled bool, bufferSize int) *PCMWriter {
	if bufferSize <= 0 {
		bufferSize = DefaultPCMBufferSize
	}
	w := &PCMWriter{enabled: enabled, bufferSize: bufferSize}
	if enabled {
		w.fileName = pcmFileName(prefix, time.Now())
	}
	return w
}

func pcmFileName(prefix string, at time.Time) string {
	return fmt.Sprintf("%s_%s.pcm", prefix, at.Format("20060102_150405"))
}

// FileName is the capture file path, empty when disabled.
func (w *PCMWriter) FileName() string {
	return w.fileName
}

// Write buffers p and appends the buffer to the file once it reaches the buffer size.
func (w *PCMWriter) Write(p []byte) (int, error) {
	if !w.enabled {
		return len(p), nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	if len(w.buf) >= w.bufferSize {
		if err := w.flushLocked(); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// Flush appends whatever is buffered.
func (w *PCMWriter) Flush() error {
	if !w.enabled {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buf) == 0 {
		return nil
	}
	return w.flushLocked()
}

func (w *PCMWriter) flushLocked() error {
	f, err := os.OpenFile(w.fileName, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open pcm file: %w", err)
	}
	if _, err := f.Write(w.buf); err != nil {
		_ = f.Close()
		return fmt.Errorf("write pcm file: %w", err)
	}
	w.buf = w.buf[:0]
	return f.Close()
}
