// Package rawloader implements the Raw Loader (spec component C11):
// reads CSV files produced by external collectors out of the raw-data
// directory into in-memory records, insensitive to file order or the
// collector that produced them.
//
// encoding/csv is used directly: nothing in the retrieved example pack
// pulls in a third-party CSV library, and the format here is the
// simple single-header-row shape the standard library parses natively.
package rawloader

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/openpolicylabs/govintel/internal/errors"
	"github.com/openpolicylabs/govintel/pkg/types"
)

// requiredColumns are the header columns a raw CSV file must carry; url,
// source/platform and the other columns are read when present and left
// empty otherwise.
var requiredColumns = []string{"text", "published_at"}

// RawRecord is one parsed CSV row, not yet validated into a types.Mention.
type RawRecord struct {
	Text        string
	URL         string
	PublishedAt time.Time
	Source      string
	Platform    string
	UserHandle  string
	Location    string
	Likes       *int64
	Shares      *int64
	Comments    *int64
	Reach       *int64
	SourceFile  string
}

// Loader reads every *.csv file in a directory.
type Loader struct {
	dir string
}

// New builds a Loader bound to dir.
func New(dir string) *Loader {
	return &Loader{dir: dir}
}

// LoadAll reads every CSV file in the raw directory, in filename order
// for determinism (the spec only requires the loader be insensitive to
// ordering, not that it impose none).
func (l *Loader) LoadAll() ([]RawRecord, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to read raw data directory")
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".csv") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var all []RawRecord
	for _, name := range names {
		records, err := l.loadFile(filepath.Join(l.dir, name))
		if err != nil {
			return nil, err
		}
		all = append(all, records...)
	}
	return all, nil
}

func (l *Loader) loadFile(path string) ([]RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to open raw data file: "+path)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "failed to read CSV header: "+path)
	}
	colIndex := make(map[string]int, len(header))
	for i, h := range header {
		colIndex[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, req := range requiredColumns {
		if _, ok := colIndex[req]; !ok {
			return nil, apperrors.New(apperrors.ErrorTypeValidation, "raw data file missing required column \""+req+"\": "+path)
		}
	}

	var records []RawRecord
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "failed to read CSV row: "+path)
		}

		rec, err := parseRow(row, colIndex)
		if err != nil {
			continue // a single malformed row does not fail the whole file
		}
		rec.SourceFile = filepath.Base(path)
		records = append(records, rec)
	}
	return records, nil
}

func parseRow(row []string, colIndex map[string]int) (RawRecord, error) {
	get := func(col string) string {
		if i, ok := colIndex[col]; ok && i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	publishedAt, err := time.Parse(time.RFC3339, get("published_at"))
	if err != nil {
		return RawRecord{}, apperrors.Wrap(err, apperrors.ErrorTypeValidation, "unparseable published_at")
	}

	rec := RawRecord{
		Text:        get("text"),
		URL:         get("url"),
		PublishedAt: publishedAt,
		Source:      get("source"),
		Platform:    get("platform"),
		UserHandle:  get("user_handle"),
		Location:    get("user_location"),
	}
	if rec.Platform == "" {
		rec.Platform = rec.Source
	}
	rec.Likes = parseOptionalInt64(get("likes"))
	rec.Shares = parseOptionalInt64(get("shares"))
	rec.Comments = parseOptionalInt64(get("comments"))
	rec.Reach = parseOptionalInt64(get("reach"))
	return rec, nil
}

func parseOptionalInt64(s string) *int64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

// ToMention converts a RawRecord into a pending types.Mention, leaving
// every derived field unset. operatorID is the operator the record is
// attributed to.
func (r RawRecord) ToMention(operatorID string) types.Mention {
	m := types.Mention{
		Text:             r.Text,
		PublishedAt:      r.PublishedAt,
		Platform:         r.Platform,
		SourceType:       classifySourceType(r.Source),
		OwningOperatorID: operatorID,
		ProcessingStatus: types.ProcessingPending,
		Engagement: types.Engagement{
			Likes:    r.Likes,
			Shares:   r.Shares,
			Comments: r.Comments,
			Reach:    r.Reach,
		},
	}
	if r.UserHandle != "" {
		m.UserHandle = &r.UserHandle
	}
	if r.Location != "" {
		m.DeclaredLocation = &r.Location
	}
	return m
}

// classifySourceType maps a collector-supplied source string to the
// fixed SourceType vocabulary, defaulting to citizen for anything
// unrecognized.
func classifySourceType(source string) types.SourceType {
	switch strings.ToLower(strings.TrimSpace(source)) {
	case "presidency", "presidency_statement", "office_of_the_president":
		return types.SourcePresidencyStatement
	case "national_media", "national-media":
		return types.SourceNationalMedia
	case "verified":
		return types.SourceVerified
	case "broadcast":
		return types.SourceBroadcast
	default:
		return types.SourceCitizen
	}
}
