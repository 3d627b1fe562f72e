// Package twiml renders the call-control markup returned from voice webhooks.
package twiml

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
)

// ContentType of a rendered Response.
const ContentType = "text/xml; charset=utf-8"

// Gather listens for caller input and posts the result to Action.
type Gather struct {
	Input         string
	Action        string
	Method        string
	Timeout       int
	SpeechTimeout string
	SpeechModel   string
	Language      string
	// Nested verbs are played while listening.
	Nested []Verb
}

// Verb is one instruction in a Response.
type Verb interface {
	element() any
}

type sayVerb struct {
	XMLName xml.Name `xml:"Say"`
	Text    string   `xml:",chardata"`
}

type playVerb struct {
	XMLName xml.Name `xml:"Play"`
	URL     string   `xml:",chardata"`
}

type hangupVerb struct {
	XMLName xml.Name `xml:"Hangup"`
}

type pauseVerb struct {
	XMLName xml.Name `xml:"Pause"`
	Length  int      `xml:"length,attr,omitempty"`
}

type gatherVerb struct {
	XMLName       xml.Name `xml:"Gather"`
	Input         string   `xml:"input,attr,omitempty"`
	Action        string   `xml:"action,attr,omitempty"`
	Method        string   `xml:"method,attr,omitempty"`
	Timeout       string   `xml:"timeout,attr,omitempty"`
	SpeechTimeout string   `xml:"speechTimeout,attr,omitempty"`
	SpeechModel   string   `xml:"speechModel,attr,omitempty"`
	Language      string   `xml:"language,attr,omitempty"`
	Children      []any
}

func (v sayVerb) element() any    { return v }
func (v playVerb) element() any   { return v }
func (v hangupVerb) element() any { return v }
func (v pauseVerb) element() any  { return v }
func (v gatherVerb) element() any { return v }

// Say speaks text with the provider's own speech engine.
func Say(text string) Verb { return sayVerb{Text: text} }

// Play streams the audio at url.
func Play(url string) Verb { return playVerb{URL: url} }

// Response is an ordered list of verbs.
type Response struct {
	verbs []Verb
}

func NewResponse() *Response { return &Response{} }

func (r *Response) Say(text string) *Response {
	r.verbs = append(r.verbs, Say(text))
	return r
}

func (r *Response) Play(url string) *Response {
	r.verbs = append(r.verbs, Play(url))
	return r
}

func (r *Response) Pause(seconds int) *Response {
	r.verbs = append(r.verbs, pauseVerb{Length: seconds})
	return r
}

func (r *Response) Gather(g Gather) *Response {
	v := gatherVerb{
		Input:         g.Input,
		Action:        g.Action,
		Method:        g.Method,
		SpeechTimeout: g.SpeechTimeout,
		SpeechModel:   g.SpeechModel,
		Language:      g.Language,
	}
	if g.Timeout > 0 {
		v.Timeout = strconv.Itoa(g.Timeout)
	}
	for _, n := range g.Nested {
		v.Children = append(v.Children, n.element())
	}
	r.verbs = append(r.verbs, v)
	return r
}

func (r *Response) Hangup() *Response {
	r.verbs = append(r.verbs, hangupVerb{})
	return r
}

// Len returns the number of top-level verbs.
func (r *Response) Len() int { return len(r.verbs) }

type document struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any
}

// Marshal renders the response with an XML declaration.
func (r *Response) Marshal() ([]byte, error) {
	doc := document{Verbs: make([]any, 0, len(r.verbs))}
	for _, v := range r.verbs {
		doc.Verbs = append(doc.Verbs, v.element())
	}
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encode twiml: %w", err)
	}
	if err := enc.Flush(); err != nil {
		return nil, fmt.Errorf("flush twiml: %w", err)
	}
	return buf.Bytes(), nil
}
