package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/cscode-eu/weatherstation/pkg/log"
)

// FilterOptions specifies filtering criteria for the filter command.
type FilterOptions struct {
	Output    string
	SessionID string
	UID       string
	TimeStart string
	TimeEnd   string
	Layer     string
	Direction string
	Category  string
}

// buildFilter turns command-line options into a reader filter.
func buildFilter(opts FilterOptions) (log.Filter, error) {
	filter := log.Filter{
		SessionID: opts.SessionID,
		UID:       opts.UID,
	}

	if opts.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeStart)
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}

	if opts.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeEnd)
		if err != nil {
			return log.Filter{}, fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}

	if opts.Layer != "" {
		l, err := ParseLayerFlag(opts.Layer)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Layer = &l
	}

	if opts.Direction != "" {
		d, err := ParseDirectionFlag(opts.Direction)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Direction = &d
	}

	if opts.Category != "" {
		c, err := ParseCategoryFlag(opts.Category)
		if err != nil {
			return log.Filter{}, err
		}
		filter.Category = &c
	}
	return filter, nil
}

// RunFilter copies the events of path that match opts into opts.Output and
// returns how many were written.
func RunFilter(path string, opts FilterOptions) (int, error) {
	if opts.Output == "" {
		return 0, fmt.Errorf("output file required")
	}
	filter, err := buildFilter(opts)
	if err != nil {
		return 0, err
	}

	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	logger, err := log.NewFileLogger(opts.Output)
	if err != nil {
		return 0, fmt.Errorf("failed to create output logger: %w", err)
	}

	count := 0
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			logger.Close()
			return count, fmt.Errorf("failed to read event: %w", err)
		}

		logger.Log(event)
		count++
	}

	if err := logger.Close(); err != nil {
		return count, fmt.Errorf("failed to close output: %w", err)
	}
	if n := logger.Dropped(); n > 0 {
		return count - n, fmt.Errorf("%d events could not be written", n)
	}
	return count, nil
}
