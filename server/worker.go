package server

import (
	"fmt"
	"strings"

	"github.com/chazu/lunac/compiler"
	"github.com/chazu/lunac/vm"
)

// document is the compiled state of one open text document.
type document struct {
	text  string
	proto *vm.Prototype // last successful compilation, nil if none yet
	err   *compiler.Error
}

// request represents a unit of work to be executed on the worker goroutine.
type request struct {
	fn   func(*workspace) any
	done chan result
}

// result holds the return value from a worker operation.
type result struct {
	value any
	err   error
}

// workspace is the state owned by the worker goroutine.
type workspace struct {
	strings *vm.StringTable
	docs    map[string]*document
}

// update recompiles uri from text. A failed compilation keeps the previous
// prototype so hover and symbols keep working while the user types.
func (ws *workspace) update(uri, text string) *document {
	doc, ok := ws.docs[uri]
	if !ok {
		doc = &document{}
		ws.docs[uri] = doc
	}
	doc.text = text
	doc.err = nil

	p, err := compiler.Compile(strings.NewReader(text), chunkName(uri), &compiler.Options{Strings: ws.strings})
	if err != nil {
		if ce, ok := err.(*compiler.Error); ok {
			doc.err = ce
			log.Debugf("%s: %s", uri, ce)
		} else {
			log.Warningf("%s: %s", uri, err)
		}
		return doc
	}
	doc.proto = p
	return doc
}

// Worker serializes all compilation through a single goroutine. Documents
// share one string table, so names interned for one file are reused by
// the next compilation.
type Worker struct {
	ws       *workspace
	requests chan request
	quit     chan struct{}
}

// NewWorker creates a Worker and starts the processing goroutine.
func NewWorker() *Worker {
	w := &Worker{
		ws: &workspace{
			strings: vm.NewStringTable(),
			docs:    make(map[string]*document),
		},
		requests: make(chan request, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *Worker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs fn against the workspace, recovering from panics.
func (w *Worker) execute(fn func(*workspace) any) (res result) {
	defer func() {
		if r := recover(); r != nil {
			res.err = fmt.Errorf("%v", r)
		}
	}()
	res.value = fn(w.ws)
	return res
}

// Do submits fn for execution on the worker goroutine and blocks until it
// completes.
func (w *Worker) Do(fn func(*workspace) any) (any, error) {
	req := request{fn: fn, done: make(chan result, 1)}
	w.requests <- req
	res := <-req.done
	return res.value, res.err
}

// Stop shuts down the worker goroutine.
func (w *Worker) Stop() {
	close(w.quit)
}

// chunkName turns a document URI into the chunk name used in messages.
func chunkName(uri string) string {
	return "@" + strings.TrimPrefix(uri, "file://")
}
