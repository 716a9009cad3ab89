// Package wire implements the packet and stream-message codecs described
// in the companion-device transport (wire format compatible with the
// protobuf Packet/Message schema: varint and fixed32 fields, length-
// delimited bytes), plus the packetizer/reassembler that splits stream
// messages across MTU-sized packets and puts them back together.
//
// There is no .proto file or generated code in this tree: the codec is
// hand-written directly against
// google.golang.org/protobuf/encoding/protowire's low-level varint/tag
// primitives.
package wire
