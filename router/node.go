// Package router implements vixgo's method-then-segment trie route table:
// registration walks `METHOD/seg1/seg2/...` into a tree where literal
// segments always take priority over `{param}` segments, and a terminal
// node owns exactly one handler.
package router

import "github.com/vixgo/vixgo/httpx"

// Handler processes a matched request and writes its response. A non-nil
// return value is auto-sent by Dispatch if the handler left the response
// unsent — see httpx.AutoSend.
type Handler func(req *httpx.Request, res *httpx.Response) interface{}

// node is one level of the routing trie. A node representing a `{name}`
// segment is stored under the special "*" child key so literal children are
// always tried first — see Router.matchNode.
type node struct {
	children  map[string]*node
	isParam   bool
	paramName string
	handler   Handler
	heavy     bool
	doc       Doc
	pattern   string
}

func newNode() *node {
	return &node{children: make(map[string]*node)}
}

func (n *node) child(segment string) (*node, bool) {
	isParam := len(segment) >= 2 && segment[0] == '{' && segment[len(segment)-1] == '}'
	key := segment
	if isParam {
		key = "*"
	}
	c, ok := n.children[key]
	if !ok {
		c = newNode()
		c.isParam = isParam
		if isParam {
			c.paramName = segment[1 : len(segment)-1]
		}
		n.children[key] = c
	}
	return c, isParam
}
