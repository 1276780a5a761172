package runtime

import (
	"github.com/louisbranch/accord/internal/objects"
)

// ReplyOn selects when a sub-message's reply is delivered to its emitter.
type ReplyOn string

const (
	// ReplyNever runs the sub-message without delivering a reply.
	// A sub-message failure then fails the emitting invocation.
	ReplyNever ReplyOn = "never"
	// ReplyAlways delivers a reply on both success and failure.
	ReplyAlways ReplyOn = "always"
	// ReplySuccess delivers a reply only on success.
	ReplySuccess ReplyOn = "success"
	// ReplyError delivers a reply only on failure.
	ReplyError ReplyOn = "error"
)

// Msg is the closed union of effects a contract can emit.
// Exactly one field must be set.
type Msg struct {
	Wasm *WasmMsg `json:"wasm,omitempty"`
	Bank *BankMsg `json:"bank,omitempty"`
}

// WasmMsg targets another contract.
type WasmMsg struct {
	Execute     *WasmExecute     `json:"execute,omitempty"`
	Instantiate *WasmInstantiate `json:"instantiate,omitempty"`
}

// WasmExecute calls a contract's Execute entrypoint.
type WasmExecute struct {
	Contract objects.Address `json:"contract"`
	Msg      []byte          `json:"msg"`
	Funds    []objects.Coin  `json:"funds,omitempty"`
}

// WasmInstantiate creates a new contract instance from stored code.
type WasmInstantiate struct {
	CodeID CodeID         `json:"code_id"`
	Msg    []byte         `json:"msg"`
	Funds  []objects.Coin `json:"funds,omitempty"`
	Label  string         `json:"label"`
}

// BankMsg moves funds held by the emitting contract.
type BankMsg struct {
	Send *BankSend `json:"send,omitempty"`
}

// BankSend transfers coins from the emitting contract to another address.
type BankSend struct {
	ToAddress objects.Address `json:"to_address"`
	Amount    []objects.Coin  `json:"amount"`
}

// ExecuteMsg builds a wasm-execute effect.
func ExecuteMsg(contract objects.Address, msg []byte, funds ...objects.Coin) Msg {
	return Msg{Wasm: &WasmMsg{Execute: &WasmExecute{Contract: contract, Msg: msg, Funds: funds}}}
}

// InstantiateMsg builds a wasm-instantiate effect.
func InstantiateMsg(codeID CodeID, msg []byte, label string, funds ...objects.Coin) Msg {
	return Msg{Wasm: &WasmMsg{Instantiate: &WasmInstantiate{CodeID: codeID, Msg: msg, Funds: funds, Label: label}}}
}

// SendMsg builds a bank-send effect.
func SendMsg(to objects.Address, amount ...objects.Coin) Msg {
	return Msg{Bank: &BankMsg{Send: &BankSend{ToAddress: to, Amount: amount}}}
}

// SubMsg pairs an effect with a reply correlation id and policy.
type SubMsg struct {
	ID      uint64  `json:"id"`
	Msg     Msg     `json:"msg"`
	ReplyOn ReplyOn `json:"reply_on"`
}

// NewSubMsg builds a fire-and-forget sub-message.
func NewSubMsg(msg Msg) SubMsg {
	return SubMsg{Msg: msg, ReplyOn: ReplyNever}
}

// ReplyOnAlways builds a sub-message whose reply always fires.
func ReplyOnAlways(id uint64, msg Msg) SubMsg {
	return SubMsg{ID: id, Msg: msg, ReplyOn: ReplyAlways}
}

// ReplyOnSuccess builds a sub-message whose reply fires on success only.
func ReplyOnSuccess(id uint64, msg Msg) SubMsg {
	return SubMsg{ID: id, Msg: msg, ReplyOn: ReplySuccess}
}

// Attribute is an emitted key/value pair recorded on the invocation result.
type Attribute struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Response is the outcome of a contract entrypoint: ordered follow-up
// effects, emitted attributes, and an optional data payload returned to
// the caller (or, for sub-messages, to the reply).
type Response struct {
	Messages   []SubMsg
	Attributes []Attribute
	Data       []byte
}

// NewResponse returns an empty response.
func NewResponse() Response {
	return Response{}
}

// AddMessage appends a fire-and-forget sub-message.
func (r Response) AddMessage(msg Msg) Response {
	r.Messages = append(r.Messages, NewSubMsg(msg))
	return r
}

// AddSubMsg appends a reply-correlated sub-message.
func (r Response) AddSubMsg(sub SubMsg) Response {
	r.Messages = append(r.Messages, sub)
	return r
}

// AddAttribute appends an emitted attribute.
func (r Response) AddAttribute(key, value string) Response {
	r.Attributes = append(r.Attributes, Attribute{Key: key, Value: value})
	return r
}

// WithData sets the response data payload.
func (r Response) WithData(data []byte) Response {
	r.Data = data
	return r
}

// SubMsgResponse is the success payload of a completed sub-message.
// ContractAddress is set when the sub-message instantiated a contract.
type SubMsgResponse struct {
	ContractAddress objects.Address `json:"contract_address,omitempty"`
	Data            []byte          `json:"data,omitempty"`
	Attributes      []Attribute     `json:"attributes,omitempty"`
}

// Reply resumes the emitting contract after a sub-message completed.
// Exactly one of Ok or Err is set.
type Reply struct {
	ID  uint64          `json:"id"`
	Ok  *SubMsgResponse `json:"ok,omitempty"`
	Err string          `json:"err,omitempty"`
}

// Succeeded reports whether the sub-message completed without error.
func (r Reply) Succeeded() bool {
	return r.Ok != nil
}
