package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"sort"
	"time"
)

const recordFormatVersion = 1

const (
	maxIDLen     = 255
	maxUserIDLen = 1<<16 - 1
	maxIPLen     = 255
	maxTokenLen  = 1<<16 - 1
)

var errInvalidRecord = errors.New("invalid session record encoding")

// Encode serializes r into the compact binary form stored by the Redis
// repository. Session entries are written in IP order.
func Encode(r *Record) ([]byte, error) {
	if r == nil {
		return nil, errors.New("nil record")
	}
	if len(r.ID) > maxIDLen {
		return nil, errors.New("record id too long")
	}
	if len(r.UserID) > maxUserIDLen {
		return nil, errors.New("user id too long")
	}
	if len(r.Sessions) > 255 {
		return nil, errors.New("too many sessions")
	}

	var buf bytes.Buffer
	buf.WriteByte(recordFormatVersion)

	buf.WriteByte(byte(len(r.ID)))
	buf.WriteString(r.ID)

	writeUint16(&buf, uint16(len(r.UserID)))
	buf.WriteString(r.UserID)

	writeInt64(&buf, r.CreatedAt.UnixNano())
	writeInt64(&buf, r.UpdatedAt.UnixNano())

	ips := make([]string, 0, len(r.Sessions))
	for ip := range r.Sessions {
		ips = append(ips, ip)
	}
	sort.Strings(ips)

	buf.WriteByte(byte(len(ips)))
	for _, ip := range ips {
		tok := r.Sessions[ip]
		if len(ip) > maxIPLen {
			return nil, errors.New("ip too long")
		}
		if len(tok) > maxTokenLen {
			return nil, errors.New("refresh token too long")
		}
		buf.WriteByte(byte(len(ip)))
		buf.WriteString(ip)
		writeUint16(&buf, uint16(len(tok)))
		buf.WriteString(tok)
	}

	return buf.Bytes(), nil
}

// Decode parses data produced by Encode.
func Decode(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordFormatVersion {
		return nil, errInvalidRecord
	}

	r := &Record{}

	idLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if r.ID, err = readString(reader, int(idLen)); err != nil {
		return nil, err
	}

	var userLen uint16
	if err := binary.Read(reader, binary.BigEndian, &userLen); err != nil {
		return nil, err
	}
	if r.UserID, err = readString(reader, int(userLen)); err != nil {
		return nil, err
	}

	var created, updated int64
	if err := binary.Read(reader, binary.BigEndian, &created); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &updated); err != nil {
		return nil, err
	}
	r.CreatedAt = time.Unix(0, created).UTC()
	r.UpdatedAt = time.Unix(0, updated).UTC()

	count, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	r.Sessions = make(map[string]string, count)
	for i := 0; i < int(count); i++ {
		ipLen, err := reader.ReadByte()
		if err != nil {
			return nil, err
		}
		ip, err := readString(reader, int(ipLen))
		if err != nil {
			return nil, err
		}
		var tokLen uint16
		if err := binary.Read(reader, binary.BigEndian, &tokLen); err != nil {
			return nil, err
		}
		tok, err := readString(reader, int(tokLen))
		if err != nil {
			return nil, err
		}
		if _, dup := r.Sessions[ip]; dup {
			return nil, errInvalidRecord
		}
		r.Sessions[ip] = tok
	}

	if reader.Len() != 0 {
		return nil, errInvalidRecord
	}

	return r, nil
}

func readString(r *bytes.Reader, n int) (string, error) {
	if n > r.Len() {
		return "", io.ErrUnexpectedEOF
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeInt64(buf *bytes.Buffer, v int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	buf.Write(b[:])
}
