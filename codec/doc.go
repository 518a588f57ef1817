// Package codec moves strings and handle arrays across linear memory.
//
// Host to module, Encoder.Pass allocates through the module's own
// allocator, copies ASCII directly and UTF-8 encodes the remainder with
// golang.org/x/text. Module to host, Decoder.String validates UTF-8 strictly.
//
//	views := codec.NewViews(mem)
//	enc := codec.NewEncoder(views, alloc)
//	ptr, n, err := enc.Pass("héllo")
//
//	dec := codec.NewDecoder(views)
//	s, err := dec.String(ptr, n)
//
// Views caches the memory slice and rebuilds it after memory growth.
package codec
