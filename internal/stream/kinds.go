// Package stream turns DynamoDB stream records into typed order views.
package stream

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// EventKind is the eventName of a stream record.
type EventKind string

const (
	KindInsert EventKind = EventKind(events.DynamoDBOperationTypeInsert)
	KindModify EventKind = EventKind(events.DynamoDBOperationTypeModify)
	KindRemove EventKind = EventKind(events.DynamoDBOperationTypeRemove)
)

// KindSet is the set of event kinds that may trigger an email.
type KindSet map[EventKind]struct{}

// DefaultKinds processes newly created orders only.
func DefaultKinds() KindSet {
	return KindSet{KindInsert: {}}
}

// ParseKinds parses a comma separated list such as "INSERT,MODIFY".
// An empty string yields DefaultKinds.
func ParseKinds(s string) (KindSet, error) {
	set := KindSet{}
	for _, part := range strings.Split(s, ",") {
		part = strings.ToUpper(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		switch k := EventKind(part); k {
		case KindInsert, KindModify, KindRemove:
			set[k] = struct{}{}
		default:
			return nil, fmt.Errorf("unknown stream event kind %q", part)
		}
	}
	if len(set) == 0 {
		return DefaultKinds(), nil
	}
	return set, nil
}

// Has reports whether kind is in the set.
func (s KindSet) Has(kind EventKind) bool {
	_, ok := s[kind]
	return ok
}

func (s KindSet) String() string {
	names := make([]string, 0, len(s))
	for k := range s {
		names = append(names, string(k))
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// Eligible reports whether rec should be processed: its kind is in kinds and it
// carries a new image to read.
func Eligible(rec events.DynamoDBEventRecord, kinds KindSet) bool {
	return kinds.Has(EventKind(rec.EventName)) && len(rec.Change.NewImage) > 0
}
