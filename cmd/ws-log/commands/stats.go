package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/cscode-eu/weatherstation/pkg/log"
)

// Stats holds aggregate statistics about a capture file.
type Stats struct {
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Sessions          map[string]*SessionStats
	Modules           map[string]string // UID -> kind
	SamplesByKind     map[string]int
	Callbacks         int
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// SessionStats holds statistics for one connection epoch.
type SessionStats struct {
	FirstSeen    time.Time
	LastSeen     time.Time
	Events       int
	Enumerations int
	Samples      int
}

func newStats() *Stats {
	return &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Sessions:          make(map[string]*SessionStats),
		Modules:           make(map[string]string),
		SamplesByKind:     make(map[string]int),
	}
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++

	// Track time range
	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	if event.Packet != nil && event.Packet.IsCallback() {
		s.Callbacks++
	}
	if event.Enumeration != nil && event.UID != "" && event.Enumeration.Kind != "" {
		s.Modules[event.UID] = event.Enumeration.Kind
	}
	if event.Sample != nil {
		s.SamplesByKind[event.Sample.Kind]++
	}
	if event.Error != nil {
		s.Errors++
	}

	// Events before the first epoch carry no session id
	if event.SessionID == "" {
		return
	}
	sess, ok := s.Sessions[event.SessionID]
	if !ok {
		sess = &SessionStats{
			FirstSeen: event.Timestamp,
			LastSeen:  event.Timestamp,
		}
		s.Sessions[event.SessionID] = sess
	}
	sess.Events++
	if event.Timestamp.After(sess.LastSeen) {
		sess.LastSeen = event.Timestamp
	}
	if event.Enumeration != nil {
		sess.Enumerations++
	}
	if event.Sample != nil {
		sess.Samples++
	}
}

// RunStats analyzes the capture file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := log.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := newStats()
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		stats.add(event)
	}

	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Weather Station Capture Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintf(w, "Callbacks:    %d\n", stats.Callbacks)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Layer:")
	for _, layer := range []log.Layer{log.LayerTransport, log.LayerWire, log.LayerApplication} {
		if count := stats.EventsByLayer[layer]; count > 0 {
			fmt.Fprintf(w, "  %-14s %d\n", layer.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, cat := range []log.Category{log.CategoryPacket, log.CategoryProbe, log.CategoryState, log.CategoryError, log.CategoryEnumeration, log.CategoryTelemetry} {
		if count := stats.EventsByCategory[cat]; count > 0 {
			fmt.Fprintf(w, "  %-14s %d\n", cat.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Direction:")
	for _, dir := range []log.Direction{log.DirectionIn, log.DirectionOut, log.DirectionNone} {
		if count := stats.EventsByDirection[dir]; count > 0 {
			fmt.Fprintf(w, "  %-14s %d\n", dir.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	if len(stats.Modules) > 0 {
		uids := make([]string, 0, len(stats.Modules))
		for uid := range stats.Modules {
			uids = append(uids, uid)
		}
		sort.Strings(uids)

		fmt.Fprintf(w, "Modules: %d\n", len(uids))
		for _, uid := range uids {
			kind := stats.Modules[uid]
			fmt.Fprintf(w, "  %-8s %-18s %d samples\n", uid, kind, stats.SamplesByKind[kind])
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Sessions: %d\n", len(stats.Sessions))
	if len(stats.Sessions) > 0 {
		type sessionInfo struct {
			id    string
			stats *SessionStats
		}
		sessions := make([]sessionInfo, 0, len(stats.Sessions))
		for id, ss := range stats.Sessions {
			sessions = append(sessions, sessionInfo{id, ss})
		}
		sort.Slice(sessions, func(i, j int) bool {
			return sessions[i].stats.FirstSeen.Before(sessions[j].stats.FirstSeen)
		})

		fmt.Fprintln(w, "")
		for _, s := range sessions {
			duration := s.stats.LastSeen.Sub(s.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %d events, duration %s\n", shortenID(s.id), s.stats.Events, duration)
			fmt.Fprintf(w, "             Enumerations: %d  Samples: %d\n", s.stats.Enumerations, s.stats.Samples)
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}
