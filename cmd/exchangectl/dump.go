package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"exchange-core/internal/core"
)

type tradeLine struct {
	Time      string `json:"time"`
	Timestamp int64  `json:"timestamp"`
	Symbol    string `json:"symbol"`
	ID        string `json:"id"`
	Side      string `json:"side"`
	Price     string `json:"price"`
	Amount    string `json:"amount"`
	Cost      string `json:"cost"`
}

func newTradeLine(t core.Trade) tradeLine {
	return tradeLine{
		Time:      t.Timestamp.UTC().Format(time.RFC3339Nano),
		Timestamp: t.Timestamp.UnixMilli(),
		Symbol:    t.Symbol,
		ID:        t.ID,
		Side:      string(t.Side),
		Price:     t.Price.String(),
		Amount:    t.Amount.String(),
		Cost:      t.Cost.String(),
	}
}

// tradeSource is the part of exchange.Client the dump needs.
type tradeSource interface {
	FetchTrades(ctx context.Context, symbol string, since time.Time, limit int) ([]core.Trade, error)
}

// dumpTrades pages public trades from start until end or until the venue
// stops returning newer ones, writing one JSONL file per UTC day.
func dumpTrades(ctx context.Context, src tradeSource, w *dateWriter, symbol string, start, end time.Time, batch int) (int, error) {
	since := start
	total := 0
	for since.Before(end) {
		trades, err := src.FetchTrades(ctx, symbol, since, batch)
		if err != nil {
			return total, err
		}
		progressed := false
		for _, t := range trades {
			if t.Timestamp.Before(since) || !t.Timestamp.Before(end) {
				continue
			}
			encoded, err := json.Marshal(newTradeLine(t))
			if err != nil {
				return total, err
			}
			if err := w.write(t.Timestamp.UTC().Format("2006-01-02"), encoded); err != nil {
				return total, err
			}
			total++
			if next := t.Timestamp.Add(time.Millisecond); next.After(since) {
				since = next
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
	return total, nil
}

type dateWriter struct {
	root        string
	currentDate string
	currentFile *os.File
}

func newDateWriter(root string) (*dateWriter, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &dateWriter{root: root}, nil
}

func (w *dateWriter) write(date string, line []byte) error {
	if err := w.rotate(date); err != nil {
		return err
	}
	if _, err := w.currentFile.Write(append(line, '\n')); err != nil {
		return err
	}
	return nil
}

func (w *dateWriter) rotate(date string) error {
	if date == w.currentDate && w.currentFile != nil {
		return nil
	}
	if err := w.close(); err != nil {
		return err
	}
	path := filepath.Join(w.root, date+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	w.currentFile = f
	w.currentDate = date
	return nil
}

func (w *dateWriter) close() error {
	if w == nil || w.currentFile == nil {
		return nil
	}
	if err := w.currentFile.Sync(); err != nil {
		_ = w.currentFile.Close()
		w.currentFile = nil
		return err
	}
	err := w.currentFile.Close()
	w.currentFile = nil
	return err
}

// resolveWindow turns -hours or -start/-end into a half-open UTC window.
func resolveWindow(hours int, startRaw, endRaw string, now time.Time) (time.Time, time.Time, error) {
	startRaw = strings.TrimSpace(startRaw)
	endRaw = strings.TrimSpace(endRaw)
	if startRaw == "" && endRaw == "" {
		if hours < 1 {
			return time.Time{}, time.Time{}, errors.New("hours must be >= 1")
		}
		end := now.UTC()
		return end.Add(-time.Duration(hours) * time.Hour), end, nil
	}
	if startRaw == "" || endRaw == "" {
		return time.Time{}, time.Time{}, errors.New("start and end must be provided together")
	}
	start, startDateOnly, err := parseRangeTime(startRaw)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start: %w", err)
	}
	end, endDateOnly, err := parseRangeTime(endRaw)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end: %w", err)
	}
	if startDateOnly {
		start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	}
	if endDateOnly {
		end = time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, errors.New("end must be after start")
	}
	return start.UTC(), end.UTC(), nil
}

func parseRangeTime(raw string) (time.Time, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false, errors.New("empty")
	}
	if len(raw) == len("2006-01-02") {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return time.Time{}, false, err
		}
		return t, true, nil
	}
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02 15:04",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), false, nil
		}
	}
	return time.Time{}, false, errors.New("unsupported time format")
}
