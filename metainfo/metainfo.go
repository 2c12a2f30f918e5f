// Package metainfo decodes a bencoded .torrent descriptor into a Plan:
// the flattened, validated view of a torrent's files and piece hashes
// that the coordinator needs to construct a Piece Index and File Set.
package metainfo

import (
	"bytes"
	"crypto/sha1"
	"io"

	bencode "github.com/jackpal/bencode-go"
	marksamman "github.com/marksamman/bencode"
	"github.com/pkg/errors"
)

// File is one entry of a multi-file torrent's file list.
type File struct {
	Path   []string
	Length int64
}

// Plan is the fully-decoded, validated view of a metainfo descriptor.
type Plan struct {
	Name         string
	PieceLength  int64
	Size         int64
	Files        []File
	PieceHashes  []byte // concatenated 20-byte SHA-1 digests
	AnnounceURLs []string
	InfoHash     [20]byte
	MultiFile    bool // true iff the descriptor used info.files rather than info.length

	Comment      string
	CreatedBy    string
	CreationDate int64
	Encoding     string
	Private      bool
}

// NumPieces returns len(PieceHashes) / 20.
func (p *Plan) NumPieces() int {
	return len(p.PieceHashes) / 20
}

// PieceHash returns the expected 20-byte SHA-1 digest for piece index i.
func (p *Plan) PieceHash(i int) []byte {
	return p.PieceHashes[20*i : 20*i+20]
}

type wireInfo struct {
	Name        string `bencode:"name"`
	PieceLength int64  `bencode:"piece length"`
	Pieces      string `bencode:"pieces"`
	Private     int    `bencode:"private"`
	Length      int64  `bencode:"length"`
	Files       []struct {
		Length int64    `bencode:"length"`
		Path   []string `bencode:"path"`
	} `bencode:"files"`
}

type wireMetaInfo struct {
	Info         wireInfo   `bencode:"info"`
	Announce     string     `bencode:"announce"`
	AnnounceList [][]string `bencode:"announce-list"`
	CreationDate int64      `bencode:"creation date"`
	Comment      string     `bencode:"comment"`
	CreatedBy    string     `bencode:"created by"`
	Encoding     string     `bencode:"encoding"`
}

// Load decodes a bencoded metainfo descriptor from r and validates it
// per the mandatory-key and consistency rules of the format. Any
// failure returned here is fatal to the torrent that invokes Load.
func Load(r io.ReadSeeker) (*Plan, error) {
	infoHash, err := computeInfoHash(r)
	if err != nil {
		return nil, errors.Wrap(err, "compute info hash")
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "seek metainfo")
	}
	var mi wireMetaInfo
	if err := bencode.Unmarshal(r, &mi); err != nil {
		return nil, errors.Wrap(err, "unmarshal metainfo")
	}

	plan, err := fromWire(&mi)
	if err != nil {
		return nil, err
	}
	plan.InfoHash = infoHash
	return plan, nil
}

// computeInfoHash re-reads r from the start, decodes it generically,
// pulls out the decoded "info" sub-dictionary, re-encodes it with a
// canonical bencoder (sorted keys), and hashes the result. The hash
// equals one computed over the original bytes only when the source's
// info dictionary was itself canonically encoded.
func computeInfoHash(r io.ReadSeeker) ([20]byte, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return [20]byte{}, err
	}
	decoded, err := marksamman.Decode(r)
	if err != nil {
		return [20]byte{}, errors.Wrap(err, "decode metainfo dictionary")
	}
	info, ok := decoded["info"]
	if !ok {
		return [20]byte{}, errors.New("missing info dictionary")
	}
	canonical := marksamman.Encode(info)
	return sha1.Sum(canonical), nil
}

func fromWire(mi *wireMetaInfo) (*Plan, error) {
	if mi.Info.Name == "" {
		return nil, errors.New("missing info.name")
	}
	if mi.Info.PieceLength <= 0 {
		return nil, errors.New("missing or non-positive info.piece length")
	}
	if len(mi.Info.Pieces) == 0 {
		return nil, errors.New("missing info.pieces")
	}
	if len(mi.Info.Pieces)%20 != 0 {
		return nil, errors.New("info.pieces length is not a multiple of 20")
	}
	hasLength := mi.Info.Length > 0
	hasFiles := len(mi.Info.Files) > 0
	if hasLength == hasFiles {
		return nil, errors.New("exactly one of info.length or info.files must be set")
	}

	plan := &Plan{
		Name:         mi.Info.Name,
		PieceLength:  mi.Info.PieceLength,
		PieceHashes:  []byte(mi.Info.Pieces),
		AnnounceURLs: announceURLs(mi.Announce, mi.AnnounceList),
		Comment:      mi.Comment,
		CreatedBy:    mi.CreatedBy,
		CreationDate: mi.CreationDate,
		Encoding:     mi.Encoding,
		Private:      mi.Info.Private != 0,
	}

	if hasLength {
		plan.Size = mi.Info.Length
		plan.Files = []File{{Path: []string{mi.Info.Name}, Length: mi.Info.Length}}
	} else {
		plan.MultiFile = true
		for _, f := range mi.Info.Files {
			plan.Size += f.Length
			plan.Files = append(plan.Files, File{Path: f.Path, Length: f.Length})
		}
	}

	if plan.Size == 0 {
		return nil, errors.New("torrent payload size is zero")
	}
	return plan, nil
}

// announceURLs unions announce and the flattened announce-list,
// de-duplicated by URL, preserving first-seen order.
func announceURLs(announce string, announceList [][]string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(announceList)+1)
	add := func(u string) {
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		out = append(out, u)
	}
	add(announce)
	for _, tier := range announceList {
		for _, u := range tier {
			add(u)
		}
	}
	return out
}

// VerifyInfoHash re-decodes data as a full metainfo file and confirms
// the canonical re-encoding of its info dictionary hashes to want.
// Exposed as a reusable check rather than only as a test assertion.
func VerifyInfoHash(data []byte, want [20]byte) (bool, error) {
	got, err := computeInfoHash(bytes.NewReader(data))
	if err != nil {
		return false, err
	}
	return got == want, nil
}
