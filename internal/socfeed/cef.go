package socfeed

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/invisible-tech/mazerunner-sdk/internal/types"
)

// ErrInvalidCEF is returned for records that are not CEF.
var ErrInvalidCEF = errors.New("invalid CEF record")

const cefFields = 8

var (
	cefVersion   = regexp.MustCompile(`CEF:(\d+)`)
	cefExtension = regexp.MustCompile(`(\w+)=(\S*)`)
)

// ParseCEF parses one CEF record into a SOC event. The header may carry a
// syslog prefix before "CEF:". Extension pairs are merged into the event and
// override header keys of the same name.
func ParseCEF(record string) (types.SOCEvent, error) {
	record = strings.TrimRight(record, "\r\n\x00")
	tokens := strings.Split(record, "|")
	if len(tokens) != cefFields {
		return nil, fmt.Errorf("%w: expected %d fields, got %d", ErrInvalidCEF, cefFields, len(tokens))
	}
	m := cefVersion.FindStringSubmatch(tokens[0])
	if m == nil {
		return nil, fmt.Errorf("%w: missing CEF version", ErrInvalidCEF)
	}

	event := types.SOCEvent{
		"cef_version":    m[1],
		"device_vendor":  tokens[1],
		"device_product": tokens[2],
		"device_version": tokens[3],
		"signature_id":   tokens[4],
		"name":           tokens[5],
		"severity":       tokens[6],
	}
	for _, kv := range cefExtension.FindAllStringSubmatch(tokens[7], -1) {
		event[kv[1]] = kv[2]
	}
	return event, nil
}
