package observability

import (
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/searchktools/tiny-server/core/http"
)

// ContentTypeProtobuf selects the binary stats encoding when listed in Accept.
const ContentTypeProtobuf = "application/x-protobuf"

// Codec encodes and decodes stats messages
type Codec interface {
	Encode(v proto.Message) ([]byte, error)
	Decode(data []byte, v proto.Message) error
	Name() string
}

// ProtobufCodec implements Protocol Buffers wire encoding
type ProtobufCodec struct{}

func (ProtobufCodec) Encode(v proto.Message) ([]byte, error) {
	return proto.Marshal(v)
}

func (ProtobufCodec) Decode(data []byte, v proto.Message) error {
	return proto.Unmarshal(data, v)
}

func (ProtobufCodec) Name() string {
	return "protobuf"
}

// JSONCodec implements the protobuf JSON mapping
type JSONCodec struct{}

func (JSONCodec) Encode(v proto.Message) ([]byte, error) {
	return protojson.MarshalOptions{Multiline: true}.Marshal(v)
}

func (JSONCodec) Decode(data []byte, v proto.Message) error {
	return protojson.Unmarshal(data, v)
}

func (JSONCodec) Name() string {
	return "json"
}

// CodecFor picks the codec for an Accept header value.
func CodecFor(accept string) Codec {
	for _, part := range strings.Split(accept, ",") {
		mediaType, _, _ := strings.Cut(part, ";")
		if strings.EqualFold(strings.TrimSpace(mediaType), ContentTypeProtobuf) {
			return ProtobufCodec{}
		}
	}
	return JSONCodec{}
}

// EncodeStats converts stats fields into a google.protobuf.Struct and
// encodes it with codec.
func EncodeStats(codec Codec, fields map[string]any) ([]byte, error) {
	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	return codec.Encode(msg)
}

// StatsHandler answers with the fields returned by source: protobuf binary
// when the client accepts application/x-protobuf, JSON text otherwise.
func StatsHandler(source func() map[string]any, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(req *http.Request, res *http.Response) {
		codec := CodecFor(req.Header("Accept"))

		data, err := EncodeStats(codec, source())
		if err != nil {
			logger.Error("stats encoding failed", slog.String("codec", codec.Name()), slog.Any("error", err))
			res.Status(500).Send()
			return
		}

		if _, ok := codec.(ProtobufCodec); ok {
			res.SendBinary(data)
			return
		}
		res.SendText(string(data))
	}
}

// Fields flattens the snapshot for encoding.
func (s Snapshot) Fields() map[string]any {
	routes := make([]any, 0, len(s.Routes))
	for _, r := range s.Routes {
		routes = append(routes, map[string]any{
			"route":           r.Route,
			"count":           r.Count,
			"errors":          r.Errors,
			"avg_duration_ms": durationMillis(r.AvgDuration),
			"min_duration_ms": durationMillis(r.MinDuration),
			"max_duration_ms": durationMillis(r.MaxDuration),
		})
	}
	return map[string]any{
		"total_requests": s.TotalRequests,
		"total_errors":   s.TotalErrors,
		"routes":         routes,
	}
}
