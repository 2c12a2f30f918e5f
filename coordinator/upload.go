package coordinator

// ChunkReply receives the outcome of a RequestChunk call: exactly one
// of Data or Err is set, or both are nil/empty for an unknown piece
// index, which replies empty rather than with an error.
type ChunkReply struct {
	Data []byte
	Err  error
}

// RequestChunk implements the chunk upload service. reply is invoked
// exactly once, from the coordinator's own execution context, with
// the read result. The coordinator performs no rate limiting; that is
// the peer component's concern.
func (t *Torrent) RequestChunk(index int, begin, length int64, reply func(ChunkReply)) {
	t.post(func() { t.handleChunkRequest(index, begin, length, reply) })
}

func (t *Torrent) handleChunkRequest(index int, begin, length int64, reply func(ChunkReply)) {
	if t.pieces == nil || index < 0 || index >= t.pieces.Len() {
		reply(ChunkReply{})
		return
	}
	pc := t.pieces.Get(index)
	if t.files == nil {
		reply(ChunkReply{})
		return
	}
	data, err := t.files.Read(pc.Offset+begin, length)
	if err != nil {
		reply(ChunkReply{Err: err})
		return
	}
	t.mu.Lock()
	t.uploaded += int64(len(data))
	t.mu.Unlock()
	reply(ChunkReply{Data: data})
}
