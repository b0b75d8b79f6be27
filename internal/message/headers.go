package message

// Header keys set by the builder on every message.
const (
	HeaderID        = "id"
	HeaderTimestamp = "timestamp"
)

// Wire-visible header keys. Binders without native header support must
// carry these bit-exact by embedding them alongside the payload.
const (
	HeaderCorrelationID  = "correlationId"
	HeaderSequenceSize   = "sequenceSize"
	HeaderSequenceNumber = "sequenceNumber"
	HeaderContentType    = "contentType"

	// HeaderOriginalContentType preserves the content type a payload had
	// before an outbound conversion overwrote it.
	HeaderOriginalContentType = "originalContentType"
)

// PropagatedHeaders lists the headers copied from an inbound message onto
// a reply derived from it. Content-type headers are excluded: the reply's
// content type is decided by its own output conversion.
var PropagatedHeaders = []string{
	HeaderCorrelationID,
	HeaderSequenceSize,
	HeaderSequenceNumber,
}
