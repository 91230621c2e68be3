package wire

import (
	"bytes"
	"context"
	"io"
	"mime"
	"strings"
)

// MultipartReader splits a multipart body into parts. Delimiters are matched exactly on "\r\n--boundary";
// the body is scanned as if it started with "\r\n" so a leading delimiter needs no special case.
type MultipartReader struct {
	body   *Body
	limits Limits
	delim  []byte

	buf []byte
	r   int
	eof bool

	parts int
	cur   *Part
	done  bool
}

func newMultipartReader(b *Body, boundary string, limits Limits) *MultipartReader {
	return &MultipartReader{
		body:   b,
		limits: limits,
		delim:  []byte("\r\n--" + boundary),
		buf:    []byte("\r\n"),
	}
}

// Part is one section of a multipart body. Its header fields are owned copies.
type Part struct {
	Header Header

	mr       *MultipartReader
	name     string
	filename string
	done     bool
}

// FormName returns the name parameter of the Content-Disposition header.
func (p *Part) FormName() string { return p.name }

// FileName returns the filename parameter of the Content-Disposition header.
func (p *Part) FileName() string { return p.filename }

var errUnterminated = newError(KindProtocolViolation, "unterminated multipart body")

// more compacts the buffer and appends the next decoded body segment.
func (mr *MultipartReader) more(ctx context.Context) error {
	if mr.r > 0 {
		n := copy(mr.buf, mr.buf[mr.r:])
		mr.buf, mr.r = mr.buf[:n], 0
	}
	if mr.eof {
		return errUnterminated
	}

	seg, err := mr.body.Next(ctx)
	if err == io.EOF {
		mr.eof = true
		return nil
	}
	if err != nil {
		return err
	}
	mr.buf = append(mr.buf, seg...)
	return nil
}

func (mr *MultipartReader) ensure(ctx context.Context, n int) error {
	for len(mr.buf)-mr.r < n {
		if mr.eof {
			return errUnterminated
		}
		if err := mr.more(ctx); err != nil {
			return err
		}
	}
	return nil
}

// NextPart skips to the next part, discarding any unread data of the current one. It returns io.EOF after
// the closing delimiter.
func (mr *MultipartReader) NextPart(ctx context.Context) (*Part, error) {
	if mr.done {
		return nil, io.EOF
	}
	if mr.cur != nil && !mr.cur.done {
		if err := mr.cur.Discard(ctx); err != nil {
			return nil, err
		}
	}

	for {
		if i := bytes.Index(mr.buf[mr.r:], mr.delim); i >= 0 {
			mr.r += i + len(mr.delim)
			break
		}
		if mr.eof {
			return nil, errUnterminated
		}
		if keep := len(mr.delim) - 1; len(mr.buf)-mr.r > keep {
			mr.r = len(mr.buf) - keep
		}
		if err := mr.more(ctx); err != nil {
			return nil, err
		}
	}

	if err := mr.ensure(ctx, 2); err != nil {
		return nil, err
	}
	if mr.buf[mr.r] == '-' && mr.buf[mr.r+1] == '-' {
		mr.done, mr.cur = true, nil
		return nil, io.EOF
	}

	for {
		if err := mr.ensure(ctx, 1); err != nil {
			return nil, err
		}
		if c := mr.buf[mr.r]; c != ' ' && c != '\t' {
			break
		}
		mr.r++
	}
	if err := mr.ensure(ctx, 2); err != nil {
		return nil, err
	}
	if mr.buf[mr.r] != '\r' || mr.buf[mr.r+1] != '\n' {
		return nil, newError(KindProtocolViolation, "malformed multipart delimiter line")
	}
	mr.r += 2

	if mr.parts++; mr.parts > mr.limits.MaxMultipartParts {
		return nil, newError(KindPayloadTooLarge, "more than %d multipart parts", mr.limits.MaxMultipartParts)
	}

	part := &Part{mr: mr}
	if err := mr.readPartHeader(ctx, part); err != nil {
		return nil, err
	}
	mr.cur = part

	return part, nil
}

func (mr *MultipartReader) readPartHeader(ctx context.Context, part *Part) error {
	var size int
	for {
		i := bytes.Index(mr.buf[mr.r:], []byte("\r\n"))
		if i < 0 {
			if len(mr.buf)-mr.r+size > mr.limits.MaxHeaderBytes {
				return newError(KindHeaderTooLarge, "part header exceeds %d bytes", mr.limits.MaxHeaderBytes)
			}
			if err := mr.more(ctx); err != nil {
				return err
			}
			if mr.eof {
				return errUnterminated
			}
			continue
		}

		line := mr.buf[mr.r : mr.r+i]
		mr.r += i + 2
		if len(line) == 0 {
			break
		}
		if size += i + 2; size > mr.limits.MaxHeaderBytes {
			return newError(KindHeaderTooLarge, "part header exceeds %d bytes", mr.limits.MaxHeaderBytes)
		}

		f, err := parseTrailer(line)
		if err != nil {
			return err
		}
		part.Header = append(part.Header, f)
	}

	if cd := part.Header.Get("Content-Disposition"); cd != "" {
		_, params, err := mime.ParseMediaType(cd)
		if err != nil {
			return newError(KindProtocolViolation, "malformed Content-Disposition")
		}
		part.name = params["name"]
		part.filename = params["filename"]
		if part.filename != "" && !safeFileName(part.filename) {
			return newError(KindProtocolViolation, "unsafe filename %q", part.filename)
		}
	}

	return nil
}

func safeFileName(name string) bool {
	return !strings.Contains(name, "..") && !strings.ContainsAny(name, "/\\\x00")
}

// Next returns the next data segment of the part, borrowed until the next call, and io.EOF at its end.
func (p *Part) Next(ctx context.Context) ([]byte, error) {
	if p.done {
		return nil, io.EOF
	}

	mr := p.mr
	for {
		avail := mr.buf[mr.r:]
		if i := bytes.Index(avail, mr.delim); i >= 0 {
			if i == 0 {
				p.done = true
				return nil, io.EOF
			}
			mr.r += i
			return avail[:i:i], nil
		}

		if safe := len(avail) - (len(mr.delim) - 1); safe > 0 {
			mr.r += safe
			return avail[:safe:safe], nil
		}
		if mr.eof {
			return nil, errUnterminated
		}
		if err := mr.more(ctx); err != nil {
			return nil, err
		}
	}
}

// ReadAll returns an owned copy of the part's data.
func (p *Part) ReadAll(ctx context.Context) ([]byte, error) {
	var all []byte
	for {
		seg, err := p.Next(ctx)
		if err == io.EOF {
			if all == nil {
				all = []byte{}
			}
			return all, nil
		}
		if err != nil {
			return nil, err
		}
		all = append(all, seg...)
	}
}

// Discard drops the rest of the part.
func (p *Part) Discard(ctx context.Context) error {
	for {
		_, err := p.Next(ctx)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
