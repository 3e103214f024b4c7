package history

import (
	"bufio"
	"encoding/csv"
	"os"
	"strings"
)

// TailCSV reads a headered CSV file and returns its last limit rows, oldest
// first, as header-keyed records. The file may be appended to while it is
// read: a row that fails to parse ends the scan and the rows read so far
// are kept. A missing or unreadable file yields an empty slice.
func TailCSV(path string, limit int) []Record {
	if path == "" || limit <= 0 {
		return []Record{}
	}

	f, err := os.Open(path)
	if err != nil {
		return []Record{}
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		return []Record{}
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	tail := NewRing[Record](limit)
	for {
		row, err := r.Read()
		if err != nil {
			break
		}
		rec := make(Record, len(header))
		for i, name := range header {
			if i < len(row) {
				rec[name] = row[i]
			}
		}
		tail.Push(rec)
	}

	return tail.Snapshot()
}

// TailLines returns the last limit non-blank lines of a text file, oldest
// first, with surrounding whitespace trimmed. A missing or unreadable file
// yields an empty slice.
func TailLines(path string, limit int) []string {
	if path == "" || limit <= 0 {
		return []string{}
	}

	f, err := os.Open(path)
	if err != nil {
		return []string{}
	}
	defer f.Close()

	tail := NewRing[string](limit)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		tail.Push(line)
	}
	if err := scanner.Err(); err != nil {
		return []string{}
	}

	return tail.Snapshot()
}
