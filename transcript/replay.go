package transcript

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// blockHeader matches the first line of a turn block:
//
//	[2026-08-28 15:04:12] Ada (2.3s):
//
// Topic-update blocks carry no latency group and are skipped on replay.
var blockHeader = regexp.MustCompile(`^\[(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2})\] (.+) \(([0-9.]+)s\):$`)

const blockRule = "----------------------------------------"

// Replay parses a session log back into its ordered turns. Replaying a
// log written by a Store/Session pair reconstructs the in-memory
// transcript: same speakers, same text, same order.
func Replay(r io.Reader) ([]Turn, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var turns []Turn
	var current *Turn
	var body []string

	flush := func() {
		if current == nil {
			return
		}
		current.Text = strings.Join(body, "\n")
		current.Skipped = strings.HasPrefix(current.Text, "[skipped:")
		turns = append(turns, *current)
		current, body = nil, nil
	}

	for scanner.Scan() {
		line := scanner.Text()

		if current != nil {
			if line == blockRule {
				flush()
				continue
			}
			body = append(body, line)
			continue
		}

		m := blockHeader.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		ts, err := time.ParseInLocation(TimeLayout, m[1], time.Local)
		if err != nil {
			return nil, fmt.Errorf("replay: bad timestamp %q: %w", m[1], err)
		}
		secs, err := strconv.ParseFloat(m[3], 64)
		if err != nil {
			return nil, fmt.Errorf("replay: bad latency %q: %w", m[3], err)
		}
		current = &Turn{
			Speaker:   m[2],
			Timestamp: ts,
			Elapsed:   time.Duration(secs * float64(time.Second)),
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	flush()
	return turns, nil
}
