package modules

import (
	"strings"
	"sync"
	"unicode/utf8"
)

// Events constructs emitters.
type Events struct{}

// EventEmitter returns a new Emitter.
func (Events) EventEmitter() *Emitter {
	return &Emitter{listeners: make(map[string][]listener)}
}

type listener struct {
	fn   func(args ...any)
	once bool
}

// Emitter dispatches named events synchronously to registered listeners.
type Emitter struct {
	mu        sync.Mutex
	listeners map[string][]listener
}

// On registers fn for event.
func (e *Emitter) On(event string, fn func(args ...any)) *Emitter {
	e.mu.Lock()
	e.listeners[event] = append(e.listeners[event], listener{fn: fn})
	e.mu.Unlock()
	return e
}

// Once registers fn for a single delivery of event.
func (e *Emitter) Once(event string, fn func(args ...any)) *Emitter {
	e.mu.Lock()
	e.listeners[event] = append(e.listeners[event], listener{fn: fn, once: true})
	e.mu.Unlock()
	return e
}

// RemoveAllListeners drops every listener of event.
func (e *Emitter) RemoveAllListeners(event string) *Emitter {
	e.mu.Lock()
	delete(e.listeners, event)
	e.mu.Unlock()
	return e
}

// Emit calls the listeners of event in registration order and reports
// whether there were any.
func (e *Emitter) Emit(event string, args ...any) bool {
	e.mu.Lock()
	ls := e.listeners[event]
	kept := ls[:0:0]
	for _, l := range ls {
		if !l.once {
			kept = append(kept, l)
		}
	}
	e.listeners[event] = kept
	e.mu.Unlock()

	for _, l := range ls {
		l.fn(args...)
	}
	return len(ls) > 0
}

// ListenerCount returns the number of listeners for event.
func (e *Emitter) ListenerCount(event string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners[event])
}

// Stream constructs in-memory streams.
type Stream struct{}

// PassThrough returns an empty stream.
func (Stream) PassThrough() *PassThrough {
	return &PassThrough{}
}

// Readable returns an ended stream pre-filled with chunks.
func (Stream) Readable(chunks ...string) *PassThrough {
	p := &PassThrough{}
	for _, c := range chunks {
		p.buf.WriteString(c)
	}
	p.ended = true
	return p
}

// PassThrough buffers written chunks until they are read.
type PassThrough struct {
	mu    sync.Mutex
	buf   strings.Builder
	ended bool
}

// Write appends chunk and returns false once the stream has ended.
func (p *PassThrough) Write(chunk any) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ended {
		return false
	}
	p.buf.Write(toBytes(chunk))
	return true
}

// Read drains and returns the buffered data.
func (p *PassThrough) Read() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.buf.String()
	p.buf.Reset()
	return s
}

// End marks the stream as finished.
func (p *PassThrough) End() {
	p.mu.Lock()
	p.ended = true
	p.mu.Unlock()
}

// Ended reports whether End was called.
func (p *PassThrough) Ended() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ended
}

// StringDecoders constructs UTF-8 decoders.
type StringDecoders struct{}

// StringDecoder returns a decoder that holds back incomplete multi-byte sequences.
func (StringDecoders) StringDecoder() *Decoder {
	return &Decoder{}
}

// Decoder turns byte chunks into strings without splitting runes.
type Decoder struct {
	pending []byte
}

// Write decodes as much of the accumulated input as forms complete runes.
func (d *Decoder) Write(chunk any) string {
	d.pending = append(d.pending, toBytes(chunk)...)
	cut := len(d.pending)
	// Hold back a trailing partial rune, at most utf8.UTFMax-1 bytes.
	for i := len(d.pending) - 1; i >= 0 && i >= len(d.pending)-utf8.UTFMax+1; i-- {
		if utf8.RuneStart(d.pending[i]) {
			if !utf8.FullRune(d.pending[i:]) {
				cut = i
			}
			break
		}
	}
	out := string(d.pending[:cut])
	d.pending = append([]byte(nil), d.pending[cut:]...)
	return out
}

// End flushes whatever remains, complete or not.
func (d *Decoder) End() string {
	out := string(d.pending)
	d.pending = nil
	return out
}
