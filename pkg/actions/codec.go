package actions

import (
	"encoding/json"
	"reflect"
	"sort"
	"time"

	"github.com/grovetools/repostore/errors"
	"github.com/grovetools/repostore/pkg/models"
	"github.com/mitchellh/mapstructure"
)

// Envelope is the wire form of an action.
type Envelope struct {
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type decodeFunc func(payload interface{}) (RepoAction, error)

var decoders = map[Kind]decodeFunc{
	KindReposFetched:     decodeAs[ReposFetched],
	KindResolvedRev:      decodeAs[ResolvedRev],
	KindFetchedCommit:    decodeAs[FetchedCommit],
	KindFetchedRepo:      decodeAs[FetchedRepo],
	KindFetchedInventory: decodeAs[FetchedInventory],
	KindRepoCloning:      decodeAs[RepoCloning],
	KindRepoResolved:     decodeAs[RepoResolved],
	KindRepoCreated:      decodeAs[RepoCreated],
	KindFetchedBranches:  decodeAs[FetchedBranches],
	KindFetchedTags:      decodeAs[FetchedTags],
}

// Kinds returns every repository action kind, sorted.
func Kinds() []Kind {
	kinds := make([]Kind, 0, len(decoders))
	for k := range decoders {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// IsRepoKind reports whether kind names a repository action.
func IsRepoKind(kind Kind) bool {
	_, ok := decoders[kind]
	return ok
}

// Decode parses an envelope. Unknown kinds decode to Foreign.
func Decode(data []byte) (Action, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.InvalidAction("", err)
	}
	return DecodeEnvelope(env)
}

// DecodeEnvelope converts an already-parsed envelope into an action.
func DecodeEnvelope(env Envelope) (Action, error) {
	if env.Type == "" {
		return nil, errors.New(errors.ErrCodeInvalidAction, "action type is required")
	}

	var payload interface{}
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return nil, errors.InvalidAction(string(env.Type), err)
		}
	}

	if !IsRepoKind(env.Type) {
		return Foreign{Type: env.Type, Payload: payload}, nil
	}

	fields, isObject := payload.(map[string]interface{})
	if payload != nil && !isObject {
		return nil, errors.New(errors.ErrCodeInvalidAction, "payload must be an object").
			WithDetail("type", string(env.Type))
	}
	return FromMap(env.Type, fields)
}

// FromMap decodes a payload that was already unmarshalled into generic values.
func FromMap(kind Kind, payload map[string]interface{}) (Action, error) {
	decode, ok := decoders[kind]
	if !ok {
		return Foreign{Type: kind, Payload: payload}, nil
	}
	a, err := decode(payload)
	if err != nil {
		return nil, errors.InvalidAction(string(kind), err)
	}
	return a, nil
}

// Encode renders an action as an envelope.
func Encode(a Action) ([]byte, error) {
	var payload interface{} = a
	if f, ok := a.(Foreign); ok {
		payload = f.Payload
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.InvalidAction(string(a.Kind()), err)
	}
	return json.Marshal(Envelope{Type: a.Kind(), Payload: raw})
}

func decodeAs[T RepoAction](payload interface{}) (RepoAction, error) {
	var out T
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &out,
		TagName: "json",
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
			stringToAPIErrorHook,
		),
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(payload); err != nil {
		return nil, err
	}
	return out, nil
}

// stringToAPIErrorHook accepts a bare message where an APIError is expected.
// An empty message decodes to no error.
func stringToAPIErrorHook(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() != reflect.String {
		return data, nil
	}
	if to != reflect.TypeOf(models.APIError{}) && to != reflect.TypeOf(&models.APIError{}) {
		return data, nil
	}
	msg, _ := data.(string)
	if msg == "" {
		return nil, nil
	}
	return map[string]interface{}{"message": msg}, nil
}
