// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OpType identifies an atomic partition operation.
type OpType uint8

const (
	OpOffer OpType = iota + 1
	OpPoll
	OpSeek
	OpCommit
	OpEnsureSubscription
	OpHeadAdvance
	OpTailAdvance
	OpInitialise
	OpHeartbeat
	OpEvict
	OpCleanup
	OpCloseSubscription
	OpDestroySubscription
)

var opNames = map[OpType]string{
	OpOffer:               "offer",
	OpPoll:                "poll",
	OpSeek:                "seek",
	OpCommit:              "commit",
	OpEnsureSubscription:  "ensure_subscription",
	OpHeadAdvance:         "head_advance",
	OpTailAdvance:         "tail_advance",
	OpInitialise:          "initialise",
	OpHeartbeat:           "heartbeat",
	OpEvict:               "evict",
	OpCleanup:             "cleanup",
	OpCloseSubscription:   "close_subscription",
	OpDestroySubscription: "destroy_subscription",
}

func (o OpType) String() string {
	if n, ok := opNames[o]; ok {
		return n
	}
	return fmt.Sprintf("op(%d)", uint8(o))
}

// Request is an atomic operation addressed to one partition.
type Request interface {
	Op() OpType
}

// Response is the typed result of a Request.
type Response interface {
	Op() OpType
}

// OfferRequest appends elements to the tail page of a channel.
type OfferRequest struct {
	Topic         string
	Channel       int
	Elements      [][]byte
	NotifyOnSpace int64
	SealAfter     bool
}

// OfferResponse reports how much of an offer was accepted.
type OfferResponse struct {
	Status        OfferStatus
	Page          int64
	Accepted      int
	PageFreeBytes int
	// FirstOffset is the offset of the first accepted element, -1 if none.
	FirstOffset int32
	Errors      map[int]error
	// Notify lists parked subscriber tokens released by the append.
	Notify []int64
}

// PollRequest reads elements of one page for a subscriber.
type PollRequest struct {
	Topic         string
	Channel       int
	Group         string
	Page          int64
	MaxElements   int
	NotifyOnEmpty int64
	Subscriber    SubscriberID
}

// Element is a polled element and its position.
type Element struct {
	Position Position
	Value    []byte
}

// PollResponse carries polled elements and the subscription head.
type PollResponse struct {
	Status     PollStatus
	Remaining  int
	NextOffset int32
	Elements   []Element
	Head       int64
	// NextPage is the successor page when Status is PollExhausted.
	NextPage int64
}

// Code returns the remaining count or the poll sentinel.
func (r *PollResponse) Code() int {
	return r.Status.Code(r.Remaining)
}

// SeekRequest repositions a subscriber group's read cursor.
type SeekRequest struct {
	Topic      string
	Channel    int
	Group      string
	Target     Position
	Subscriber SubscriberID
}

// SeekResponse carries the seek outcome.
type SeekResponse struct {
	Status PollStatus
	Result *SeekResult
}

// CommitRequest acknowledges elements up to and including Position.
type CommitRequest struct {
	Topic      string
	Channel    int
	Group      string
	Position   Position
	Subscriber SubscriberID
}

// CommitResponse reports the committed position after the call.
type CommitResponse struct {
	Status    CommitStatus
	Committed Position
	Head      int64
	// Notify lists parked publisher tokens released by retention.
	Notify []int64
}

// EnsureSubscriptionRequest drives the subscription state machine of a group.
type EnsureSubscriptionRequest struct {
	Topic           string
	Group           string
	Subscriber      SubscriberID
	SubscriptionID  uuid.UUID
	Phase           EnsurePhase
	Reconnect       bool
	CreateGroupOnly bool
	FromBeginning   bool
	Filter          string
	Converter       string
	// Pages holds the per-channel head for PhaseAdvance.
	Pages       []int64
	ConnectedAt time.Time
}

// EnsureSubscriptionResponse carries per-channel pages.
type EnsureSubscriptionResponse struct {
	SubscriptionID uuid.UUID
	Channels       ChannelPages
}

// HeadAdvanceRequest proposes a new subscription head.
type HeadAdvanceRequest struct {
	Topic    string
	Channel  int
	Group    string
	Proposed int64
}

// TailAdvanceRequest proposes a new publication tail.
type TailAdvanceRequest struct {
	Topic    string
	Channel  int
	Proposed int64
}

// AdvanceResponse returns the value stored before the advance.
type AdvanceResponse struct {
	Previous int64
	// Notify lists parked publisher tokens released by retention.
	Notify []int64
	op     OpType
}

// InitialiseRequest prepares every channel of a topic in the partition.
type InitialiseRequest struct {
	Topic string
}

// InitialiseResponse carries the tail of every channel.
type InitialiseResponse struct {
	Tails []int64
}

// HeartbeatRequest refreshes a subscriber's liveness record.
type HeartbeatRequest struct {
	Topic          string
	Group          string
	Subscriber     SubscriberID
	SubscriptionID uuid.UUID
	ConnectedAt    time.Time
}

// HeartbeatResponse is empty.
type HeartbeatResponse struct{}

// EvictRequest removes one subscriber.
type EvictRequest struct {
	Topic      string
	Group      string
	Subscriber SubscriberID
}

// EvictResponse reports whether the subscriber was present.
type EvictResponse struct {
	Removed bool
}

// CleanupRequest sweeps subscribers against a membership snapshot.
type CleanupRequest struct {
	Members []Member
}

// CleanupResponse lists the evicted subscribers.
type CleanupResponse struct {
	Evicted Evictions
	// Failed lists topics whose sweep failed and was skipped.
	Failed []string
}

// CloseSubscriptionRequest detaches one subscriber, or all with NullSubscriber.
type CloseSubscriptionRequest struct {
	Topic      string
	Group      string
	Subscriber SubscriberID
}

// CloseSubscriptionResponse reports how many subscribers were detached.
type CloseSubscriptionResponse struct {
	Closed int
}

// DestroySubscriptionRequest deletes a group's subscription state.
type DestroySubscriptionRequest struct {
	Topic          string
	Group          string
	SubscriptionID uuid.UUID
}

// DestroySubscriptionResponse reports how many channel records were removed.
type DestroySubscriptionResponse struct {
	Destroyed int
	Notify    []int64
}

func (*OfferRequest) Op() OpType                { return OpOffer }
func (*OfferResponse) Op() OpType               { return OpOffer }
func (*PollRequest) Op() OpType                 { return OpPoll }
func (*PollResponse) Op() OpType                { return OpPoll }
func (*SeekRequest) Op() OpType                 { return OpSeek }
func (*SeekResponse) Op() OpType                { return OpSeek }
func (*CommitRequest) Op() OpType               { return OpCommit }
func (*CommitResponse) Op() OpType              { return OpCommit }
func (*EnsureSubscriptionRequest) Op() OpType   { return OpEnsureSubscription }
func (*EnsureSubscriptionResponse) Op() OpType  { return OpEnsureSubscription }
func (*HeadAdvanceRequest) Op() OpType          { return OpHeadAdvance }
func (*TailAdvanceRequest) Op() OpType          { return OpTailAdvance }
func (*InitialiseRequest) Op() OpType           { return OpInitialise }
func (*InitialiseResponse) Op() OpType          { return OpInitialise }
func (*HeartbeatRequest) Op() OpType            { return OpHeartbeat }
func (*HeartbeatResponse) Op() OpType           { return OpHeartbeat }
func (*EvictRequest) Op() OpType                { return OpEvict }
func (*EvictResponse) Op() OpType               { return OpEvict }
func (*CleanupRequest) Op() OpType              { return OpCleanup }
func (*CleanupResponse) Op() OpType             { return OpCleanup }
func (*CloseSubscriptionRequest) Op() OpType    { return OpCloseSubscription }
func (*CloseSubscriptionResponse) Op() OpType   { return OpCloseSubscription }
func (*DestroySubscriptionRequest) Op() OpType  { return OpDestroySubscription }
func (*DestroySubscriptionResponse) Op() OpType { return OpDestroySubscription }

// NewAdvanceResponse creates the response of a head or tail advance.
func NewAdvanceResponse(op OpType, previous int64) *AdvanceResponse {
	return &AdvanceResponse{op: op, Previous: previous}
}

// Op returns OpHeadAdvance or OpTailAdvance.
func (r *AdvanceResponse) Op() OpType { return r.op }
