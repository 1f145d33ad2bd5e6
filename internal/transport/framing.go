package transport

import (
	"bufio"
	"strings"
)

// ReadFrame reads one logical message from r.
//
// The venue writes a JSON document followed by an empty line: a message is complete when a blank
// line follows a line whose last character is '}'. Lines are concatenated without separators.
func ReadFrame(r *bufio.Reader) (string, error) {
	var sb strings.Builder
	closesObject := false
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return "", err
		}
		line = strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(line) == "" {
			if closesObject && sb.Len() > 0 {
				return sb.String(), nil
			}
			continue
		}
		sb.WriteString(line)
		closesObject = strings.HasSuffix(strings.TrimSpace(line), "}")
	}
}
