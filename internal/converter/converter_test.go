package converter_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/memohai/streambind/internal/converter"
	"github.com/memohai/streambind/internal/message"
	"github.com/memohai/streambind/internal/mimetype"
)

type fooPayload struct {
	Bar string `json:"bar"`
}

type bazPayload struct {
	Qux string `json:"qux"`
}

func jsonMessage(t *testing.T, body string) *message.Message {
	t.Helper()
	return message.NewBuilder([]byte(body)).
		SetHeader(message.HeaderContentType, "application/json").
		Build()
}

func TestConvertInJSONToStruct(t *testing.T) {
	t.Parallel()
	reg := converter.NewRegistry(nil)
	out, converted, err := reg.ConvertIn(jsonMessage(t, `{"bar":"barbarX"}`), converter.Tag[fooPayload]("Foo"))
	if err != nil {
		t.Fatalf("ConvertIn: %v", err)
	}
	if !converted {
		t.Fatal("ConvertIn must report the conversion")
	}
	foo, ok := out.(*fooPayload)
	if !ok {
		t.Fatalf("ConvertIn returned %T, want *fooPayload", out)
	}
	if foo.Bar != "barbarX" {
		t.Fatalf("foo.Bar = %q, want barbarX", foo.Bar)
	}
}

func TestConvertInStructuralMismatch(t *testing.T) {
	t.Parallel()
	reg := converter.NewRegistry(nil)
	_, _, err := reg.ConvertIn(jsonMessage(t, `{"qux":"value"}`), converter.Tag[fooPayload]("Foo"))
	if err == nil {
		t.Fatal("ConvertIn must fail when payload fields do not match the target")
	}
	var convErr *converter.Error
	if !errors.As(err, &convErr) {
		t.Fatalf("error %T, want *converter.Error", err)
	}
	if convErr.From != "application/json" || convErr.To != "Foo" {
		t.Fatalf("error names %s -> %s, want application/json -> Foo", convErr.From, convErr.To)
	}
}

func TestConvertInPassthrough(t *testing.T) {
	t.Parallel()
	reg := converter.NewRegistry(nil)
	payload := &fooPayload{Bar: "inproc"}
	out, converted, err := reg.ConvertIn(message.New(payload), converter.Tag[fooPayload]("Foo"))
	if err != nil {
		t.Fatalf("ConvertIn: %v", err)
	}
	if converted {
		t.Fatal("payload already matching the tag must be reported as unconverted")
	}
	if out != payload {
		t.Fatal("payload already matching the tag must pass through unconverted")
	}
}

func TestConvertInPassthroughUncomparable(t *testing.T) {
	t.Parallel()
	reg := converter.NewRegistry(nil)

	out, converted, err := reg.ConvertIn(message.New([]byte("raw")), converter.TypeTag{})
	if err != nil {
		t.Fatalf("ConvertIn with zero tag: %v", err)
	}
	if converted {
		t.Fatal("zero tag must pass the payload through unconverted")
	}
	if string(out.([]byte)) != "raw" {
		t.Fatalf("payload = %v, want raw bytes", out)
	}

	fields := map[string]any{"bar": "x"}
	out, converted, err = reg.ConvertIn(message.New(fields), converter.MapTag)
	if err != nil {
		t.Fatalf("ConvertIn with matching map tag: %v", err)
	}
	if converted {
		t.Fatal("payload already matching the map tag must be reported as unconverted")
	}
	if out.(map[string]any)["bar"] != "x" {
		t.Fatalf("payload = %v, want the original map", out)
	}
}

func TestConvertInNoConverter(t *testing.T) {
	t.Parallel()
	reg := converter.NewRegistry(nil)
	msg := message.NewBuilder([]byte("x")).
		SetHeader(message.HeaderContentType, "application/xml").
		Build()
	_, _, err := reg.ConvertIn(msg, converter.Tag[fooPayload]("Foo"))
	if err == nil {
		t.Fatal("ConvertIn must fail when no converter applies")
	}
	if !strings.Contains(err.Error(), "application/xml") || !strings.Contains(err.Error(), "Foo") {
		t.Fatalf("error %q must name source and target", err)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	t.Parallel()
	reg := converter.NewRegistry(nil)
	in := &fooPayload{Bar: "round"}

	out, err := reg.ConvertOut(message.New(in), mimetype.JSON)
	if err != nil {
		t.Fatalf("ConvertOut: %v", err)
	}
	raw, ok := out.Payload().([]byte)
	if !ok {
		t.Fatalf("serialized payload is %T, want []byte", out.Payload())
	}
	if string(raw) != `{"bar":"round"}` {
		t.Fatalf("serialized payload = %s", raw)
	}
	if got := out.HeaderString(message.HeaderContentType); got != "application/json" {
		t.Fatalf("contentType = %q, want application/json", got)
	}

	back, _, err := reg.ConvertIn(out, converter.Tag[fooPayload]("Foo"))
	if err != nil {
		t.Fatalf("ConvertIn: %v", err)
	}
	if got := back.(*fooPayload); got.Bar != in.Bar {
		t.Fatalf("round trip produced %+v, want %+v", got, in)
	}
}

func TestConvertOutPreservesOriginalContentType(t *testing.T) {
	t.Parallel()
	reg := converter.NewRegistry(nil)
	msg := message.NewBuilder(&bazPayload{Qux: "v"}).
		SetHeader(message.HeaderContentType, "application/x-go-struct;type=Baz").
		Build()
	out, err := reg.ConvertOut(msg, mimetype.JSON)
	if err != nil {
		t.Fatalf("ConvertOut: %v", err)
	}
	if got := out.HeaderString(message.HeaderOriginalContentType); got != "application/x-go-struct;type=Baz" {
		t.Fatalf("originalContentType = %q", got)
	}
	if got := out.HeaderString(message.HeaderContentType); got != "application/json" {
		t.Fatalf("contentType = %q, want application/json", got)
	}
}

func TestConvertOutNoContentTypeConfigured(t *testing.T) {
	t.Parallel()
	reg := converter.NewRegistry(nil)
	msg := message.New(&bazPayload{Qux: "v"})
	out, err := reg.ConvertOut(msg, mimetype.Type{})
	if err != nil {
		t.Fatalf("ConvertOut: %v", err)
	}
	if out != msg {
		t.Fatal("no configured content type must forward the message unconverted")
	}
}

func TestTextAndBytesCoercion(t *testing.T) {
	t.Parallel()
	reg := converter.NewRegistry(nil)

	out, _, err := reg.ConvertIn(message.New([]byte("text body")), converter.StringTag)
	if err != nil {
		t.Fatalf("ConvertIn to string: %v", err)
	}
	if out != "text body" {
		t.Fatalf("ConvertIn to string = %v", out)
	}

	out, _, err = reg.ConvertIn(message.New("text body"), converter.BytesTag)
	if err != nil {
		t.Fatalf("ConvertIn to bytes: %v", err)
	}
	if string(out.([]byte)) != "text body" {
		t.Fatalf("ConvertIn to bytes = %v", out)
	}
}

func TestGobRoundTripIdentity(t *testing.T) {
	t.Parallel()
	reg := converter.NewRegistry(nil)
	in := &fooPayload{Bar: "opaque"}

	encoded, err := reg.ConvertOut(message.New(in), mimetype.GoBinary)
	if err != nil {
		t.Fatalf("ConvertOut: %v", err)
	}
	if _, ok := encoded.Payload().([]byte); !ok {
		t.Fatalf("gob payload is %T, want []byte", encoded.Payload())
	}

	back, _, err := reg.ConvertIn(encoded, converter.Tag[fooPayload]("Foo"))
	if err != nil {
		t.Fatalf("ConvertIn: %v", err)
	}
	if got := back.(*fooPayload); got.Bar != "opaque" {
		t.Fatalf("gob round trip produced %+v", got)
	}
}

func TestConvertInToMap(t *testing.T) {
	t.Parallel()
	reg := converter.NewRegistry(nil)
	out, _, err := reg.ConvertIn(jsonMessage(t, `{"bar":"x","n":3}`), converter.MapTag)
	if err != nil {
		t.Fatalf("ConvertIn: %v", err)
	}
	fields := out.(map[string]any)
	if fields["bar"] != "x" {
		t.Fatalf("fields = %v", fields)
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()
	reg := converter.NewRegistry(nil)
	if _, err := reg.Resolve(mimetype.JSON); err != nil {
		t.Fatalf("Resolve(json): %v", err)
	}
	unknown, _ := mimetype.Parse("application/xml")
	if _, err := reg.Resolve(unknown); err == nil {
		t.Fatal("Resolve(xml) must fail")
	}
}
