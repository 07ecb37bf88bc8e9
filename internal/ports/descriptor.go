package ports

// Descriptor describes how to reach one source or sink.
type Descriptor interface {
	ConnectionURI() string
}
