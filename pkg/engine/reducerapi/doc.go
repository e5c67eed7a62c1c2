// Package reducerapi exposes pkg/engine's CallReducer boundary over
// gRPC: a hand-registered grpc.ServiceDesc plus a small client wrapper
// around grpc.ClientConn.
//
// protoc is not available in this environment, so request/response
// messages are plain Go structs marshaled with a custom JSON
// encoding.Codec (codec.go) instead of protoc-generated protobuf
// bindings. The transport, multiplexing, and service-registration
// machinery is the real grpc.Server/ClientConn from
// google.golang.org/grpc; only the wire encoding differs from a fully
// generated service.
package reducerapi
