// Package trainlog implements the two rolling, append-only log streams
// (worker events, training events) and the per-iteration self-play record
// file. The format is fixed by the system this repo coordinates with (a
// human operator tailing Worker.log/Training.log), not by a logging
// framework's own conventions, so it is a small bespoke writer rather than
// zerolog: the ambient, non-training logging elsewhere in this repo (see
// cmd/zeroserver and internal/netserver) does use zerolog.
package trainlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"zeroserver/internal/config"
)

const timestampFormat = "2006/01/02_15:04:05.000"

const separatorWidth = 100

// Logger owns Worker.log and Training.log for the lifetime of a run.
type Logger struct {
	mu          sync.Mutex
	workerFile  *os.File
	trainFile   *os.File
	recordFile  *os.File
	recordMu    sync.Mutex
	recordCount int
}

// New opens (or creates) Worker.log and Training.log under trainingDir in
// append mode, each starting with a 100-"=" separator line.
func New(trainingDir string) (*Logger, error) {
	workerFile, err := os.OpenFile(filepath.Join(trainingDir, "Worker.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("trainlog: open Worker.log: %w", err)
	}
	trainFile, err := os.OpenFile(filepath.Join(trainingDir, "Training.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		workerFile.Close()
		return nil, fmt.Errorf("trainlog: open Training.log: %w", err)
	}

	l := &Logger{workerFile: workerFile, trainFile: trainFile}
	l.writeSeparator(workerFile)
	l.writeSeparator(trainFile)
	return l, nil
}

func (l *Logger) writeSeparator(f *os.File) {
	line := make([]byte, separatorWidth+1)
	for i := 0; i < separatorWidth; i++ {
		line[i] = '='
	}
	line[separatorWidth] = '\n'
	f.Write(line)
}

// AddWorkerLog appends a timestamped line to Worker.log, mirrored to stderr.
func (l *Logger) AddWorkerLog(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writeLine(l.workerFile, msg)
}

// AddTrainingLog appends a timestamped line to Training.log, mirrored to stderr.
func (l *Logger) AddTrainingLog(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writeLine(l.trainFile, msg)
}

func (l *Logger) writeLine(f *os.File, msg string) {
	line := fmt.Sprintf("[%s] %s\n", time.Now().Format(timestampFormat), msg)
	f.WriteString(line)
	io.WriteString(os.Stderr, line)
}

// Close closes both log files.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	err1 := l.workerFile.Close()
	err2 := l.trainFile.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// OpenRecordFile truncates and opens the sgf record file cfg.RecordFilePath
// names for the given iteration. It must be closed with CloseRecordFile
// before the next iteration's call.
func (l *Logger) OpenRecordFile(cfg config.Config, iteration int) error {
	l.recordMu.Lock()
	defer l.recordMu.Unlock()

	path := cfg.RecordFilePath(iteration)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("trainlog: mkdir %s: %w", filepath.Dir(path), err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("trainlog: open %s: %w", path, err)
	}

	l.recordFile = f
	l.recordCount = 0
	return nil
}

// AppendRecord writes one numbered "<seq> <moveCount> <payload>" line to the
// currently open record file.
func (l *Logger) AppendRecord(moveCount int, payload string) error {
	l.recordMu.Lock()
	defer l.recordMu.Unlock()

	if l.recordFile == nil {
		return fmt.Errorf("trainlog: no record file open")
	}

	_, err := fmt.Fprintf(l.recordFile, "%d %d %s\n", l.recordCount, moveCount, payload)
	if err != nil {
		return fmt.Errorf("trainlog: write record: %w", err)
	}
	l.recordCount++
	return nil
}

// CloseRecordFile closes the currently open record file.
func (l *Logger) CloseRecordFile() error {
	l.recordMu.Lock()
	defer l.recordMu.Unlock()

	if l.recordFile == nil {
		return nil
	}
	err := l.recordFile.Close()
	l.recordFile = nil
	return err
}
