package logger

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so output can be
// filtered and aggregated by build, chunk, or request.
const (
	// Build pipeline
	KeyBuildID    = "build_id"    // Unique id of a compiler run
	KeyEntry      = "entry"       // Entry chunk id
	KeyChunkCount = "chunk_count" // Number of chunks produced by a build
	KeyTotalBytes = "total_bytes" // Total emitted bytes for a build

	// Chunk loading
	KeyChunkID = "chunk_id" // Chunk identifier
	KeyFile    = "file"     // Emitted chunk file name
	KeyHash    = "hash"     // Chunk content hash
	KeySize    = "size"     // Chunk size in bytes
	KeyState   = "state"    // Chunk load state (pending, success)
	KeyPreload = "preload"  // Whether the chunk was preload-registered

	// Dev server
	KeyRequestID = "request_id" // HTTP request id
	KeyMethod    = "method"     // HTTP method
	KeyPath      = "path"       // Request path or file path
	KeyStatus    = "status"     // HTTP status code
	KeyRemote    = "remote"     // Client remote address
	KeyPort      = "port"       // Listen port

	// Operation metadata
	KeyCommand    = "command"     // CLI command being executed
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyDir        = "dir"         // Directory being built, watched, or cleaned
)
