// Package accept resolves the media types a client will accept.
//
// A Resolver is one strategy (Accept header, query parameter, fixed list).
// Builder composes strategies into a chain: each is asked in order and the
// first one that returns something other than AllList wins. AllList is the
// "no preference" sentinel that lets the chain fall through.
package accept
