// Package events provides the in-process event broker used to propagate
// component lifecycle events, most importantly collector completions that
// trigger dependent harvesters.
package events
