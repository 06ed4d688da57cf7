package harvest

import (
	"bufio"
	"os"
	"strings"

	"github.com/rotisserie/eris"
)

// DefaultQuery is searched when neither a query file nor a query is given.
const DefaultQuery = "qualitative"

// ReadQueries returns the non-blank, non-comment lines of the file at path,
// else the single query, else DefaultQuery.
func ReadQueries(path, single string) ([]string, error) {
	if path == "" {
		if q := strings.TrimSpace(single); q != "" {
			return []string{q}, nil
		}
		return []string{DefaultQuery}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "harvest: open queries %s", path)
	}
	defer f.Close() //nolint:errcheck

	var queries []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		queries = append(queries, line)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrapf(err, "harvest: read queries %s", path)
	}
	return queries, nil
}
