package ingest

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gobuffalo/nulls"
	"go.uber.org/zap"

	"github.com/calmerge/calmerge-server/errors"
	"github.com/calmerge/calmerge-server/logging"
	"github.com/calmerge/calmerge-server/model"
)

// DocxReader extracts raw records from word-processor documents that hold a
// year schedule as month tables: a header cell like "JANUARY 2026" followed
// by week rows whose cells start with the day number and list the day's
// events line by line.
type DocxReader struct{}

// NewDocxReader creates a DocxReader.
func NewDocxReader() *DocxReader {
	return &DocxReader{}
}

var monthsByName = map[string]time.Month{
	"JANUARY":   time.January,
	"FEBRUARY":  time.February,
	"MARCH":     time.March,
	"APRIL":     time.April,
	"MAY":       time.May,
	"JUNE":      time.June,
	"JULY":      time.July,
	"AUGUST":    time.August,
	"SEPTEMBER": time.September,
	"OCTOBER":   time.October,
	"NOVEMBER":  time.November,
	"DECEMBER":  time.December,
}

var (
	monthHeaderPattern = regexp.MustCompile(`^([A-Z]+)\s+(\d{4})$`)
	dayCellPattern     = regexp.MustCompile(`^(\d{1,2})\s*(.*)$`)
	timeRangePattern   = regexp.MustCompile(`(\d{4})-(\d{4})`)
	timedEventPattern  = regexp.MustCompile(`^(.+?)\s+(\d{4})-(\d{4})(?:\s+(.+))?$`)
	rangeTitlePattern  = regexp.MustCompile(`^(.+?)\s+\d{4}-\d{4}`)
	conjunctionPattern = regexp.MustCompile(`(?i)(\band\b|&|\+)`)
	revisedPattern     = regexp.MustCompile(`(?i)Revised\s+([A-Za-z]+)\s+(\d{1,2}),?\s+(\d{4})`)
)

// Parse implements CalendarReader.
func (r *DocxReader) Parse(raw []byte) (ParseResult, error) {
	container, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return ParseResult{}, errors.NewUnreadableFileError("open docx container", err, nil)
	}
	var bodyBlocks []string
	var marginalia []string
	for _, file := range container.File {
		isBody := file.Name == "word/document.xml"
		isMarginalia := strings.HasPrefix(file.Name, "word/header") ||
			strings.HasPrefix(file.Name, "word/footer")
		if !isBody && !isMarginalia {
			continue
		}
		blocks, err := extractBlocks(file)
		if err != nil {
			return ParseResult{}, errors.Wrap(err, "extract text", errors.Details{"part": file.Name})
		}
		if isBody {
			bodyBlocks = append(bodyBlocks, blocks...)
		} else {
			marginalia = append(marginalia, blocks...)
		}
	}
	if len(bodyBlocks) == 0 {
		return ParseResult{}, errors.NewUnrecognizedStructureError("docx without document body", nil)
	}

	var result ParseResult
	result.Records = make([]RawRecord, 0)
	if revisedAt, ok := findRevisedAt(append(append([]string{}, marginalia...), bodyBlocks...)); ok {
		result.SourceRevisedAt = nulls.NewTime(revisedAt)
	}

	month := time.Month(0)
	year := 0
	sawHeader := false
	for _, block := range bodyBlocks {
		lines := splitLines(block)
		if len(lines) == 0 {
			continue
		}
		if m := monthHeaderPattern.FindStringSubmatch(strings.ToUpper(lines[0])); m != nil {
			if parsedMonth, ok := monthsByName[m[1]]; ok {
				parsedYear, err := strconv.Atoi(m[2])
				if err == nil {
					month, year = parsedMonth, parsedYear
					sawHeader = true
					continue
				}
			}
		}
		if !sawHeader {
			continue
		}
		result.Records = append(result.Records, parseDayCell(lines, month, year)...)
	}
	if !sawHeader {
		return ParseResult{}, errors.NewUnrecognizedStructureError("could not determine year from document", nil)
	}
	logging.IngestLogger.Debug("docx parsed",
		zap.Int("record_count", len(result.Records)),
		zap.Int("year", year))
	return result, nil
}

// parseDayCell parses one day cell into raw records. The first line holds the
// day number and possibly the first event; later lines hold one or more
// events each, separated by commas.
func parseDayCell(lines []string, month time.Month, year int) []RawRecord {
	m := dayCellPattern.FindStringSubmatch(lines[0])
	if m == nil {
		return nil
	}
	day, err := strconv.Atoi(m[1])
	if err != nil || day < 1 || day > 31 {
		return nil
	}
	date := model.NewDate(year, month, day)

	eventLines := make([]string, 0, len(lines))
	if first := strings.TrimSpace(m[2]); first != "" {
		eventLines = append(eventLines, first)
	}
	eventLines = append(eventLines, lines[1:]...)

	records := make([]RawRecord, 0)
	for _, line := range eventLines {
		for _, part := range strings.Split(line, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			// A "New Year" entry in the first December cell belongs to the next
			// year and is outside this schedule.
			if month == time.December && day == 1 &&
				strings.HasPrefix(strings.ToLower(part), "new year") {
				continue
			}
			records = append(records, parseEventPart(part, date)...)
		}
	}
	return records
}

// parseEventPart parses one comma-separated fragment into records. Fragments
// with several conjunct time ranges like "CCSC 0730-1200 and 1230-1630"
// become one record per range.
func parseEventPart(part string, date model.Date) []RawRecord {
	if ranges, ok := conjunctTimeRanges(part); ok {
		title := part
		if m := rangeTitlePattern.FindStringSubmatch(part); m != nil {
			title = strings.TrimSpace(m[1])
		}
		records := make([]RawRecord, 0, len(ranges))
		for _, timeRange := range ranges {
			records = append(records, RawRecord{
				Title: title,
				Date:  date,
				Start: timeRange[0],
				End:   timeRange[1],
				Text:  part,
			})
		}
		return records
	}
	if m := timedEventPattern.FindStringSubmatch(part); m != nil {
		title := strings.TrimSpace(m[1])
		if suffix := strings.TrimSpace(m[4]); suffix != "" {
			title = fmt.Sprintf("%s (%s)", title, suffix)
		}
		return []RawRecord{{
			Title: title,
			Date:  date,
			Start: m[2],
			End:   m[3],
			Text:  part,
		}}
	}
	// Untimed or all-day entry.
	return []RawRecord{{
		Title: part,
		Date:  date,
		Text:  part,
	}}
}

// conjunctTimeRanges extracts two or more time ranges joined by "and", "&" or
// "+". A fragment with several ranges but no conjunctions is not treated as a
// multi-range event.
func conjunctTimeRanges(part string) ([][2]string, bool) {
	matches := timeRangePattern.FindAllStringSubmatchIndex(part, -1)
	if len(matches) < 2 {
		return nil, false
	}
	ranges := make([][2]string, 0, len(matches))
	for i, match := range matches {
		if i < len(matches)-1 {
			between := part[match[1]:matches[i+1][0]]
			if !conjunctionPattern.MatchString(between) {
				return nil, false
			}
		}
		ranges = append(ranges, [2]string{
			part[match[2]:match[3]],
			part[match[4]:match[5]],
		})
	}
	return ranges, true
}

// findRevisedAt scans the given blocks for a "Revised <Month> <day>, <year>"
// marker.
func findRevisedAt(blocks []string) (time.Time, bool) {
	for _, block := range blocks {
		m := revisedPattern.FindStringSubmatch(block)
		if m == nil {
			continue
		}
		month, ok := monthsByName[strings.ToUpper(m[1])]
		if !ok {
			continue
		}
		day, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		year, err := strconv.Atoi(m[3])
		if err != nil {
			continue
		}
		revised := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
		if revised.Day() != day {
			continue
		}
		return revised, true
	}
	return time.Time{}, false
}

// extractBlocks pulls the visible text out of one WordprocessingML part.
// Every table cell becomes one block with its paragraphs as lines; paragraphs
// outside tables become blocks of their own.
func extractBlocks(file *zip.File) ([]string, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, errors.NewUnreadableFileError("open docx part", err, nil)
	}
	defer func() { _ = rc.Close() }()

	decoder := xml.NewDecoder(rc)
	blocks := make([]string, 0)
	var paragraph strings.Builder
	var cellLines []string
	tableDepth := 0
	inCell := false
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.NewUnreadableFileError("decode docx xml", err, nil)
		}
		switch t := token.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "tbl":
				tableDepth++
			case "tc":
				if tableDepth > 0 {
					inCell = true
					cellLines = cellLines[:0]
				}
			}
		case xml.CharData:
			paragraph.Write(t)
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				line := strings.TrimSpace(paragraph.String())
				paragraph.Reset()
				if line == "" {
					break
				}
				if inCell {
					cellLines = append(cellLines, line)
				} else if tableDepth == 0 {
					blocks = append(blocks, line)
				}
			case "tc":
				if inCell {
					if len(cellLines) > 0 {
						blocks = append(blocks, strings.Join(cellLines, "\n"))
					}
					inCell = false
				}
			case "tbl":
				if tableDepth > 0 {
					tableDepth--
				}
			}
		}
	}
	return blocks, nil
}

// splitLines splits a block into trimmed, non-empty lines.
func splitLines(block string) []string {
	lines := make([]string, 0)
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
