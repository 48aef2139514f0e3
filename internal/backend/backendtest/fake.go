// Package backendtest はテスト用のメモリ上の認証サービスとドキュメントストアを提供する。
package backendtest

import (
	"context"
	"sync"

	"github.com/hitoshi/msgbox/internal/backend"
	"github.com/hitoshi/msgbox/internal/model"
)

type account struct {
	password string
	identity model.Identity
}

type query struct {
	id         int
	collection string
	owner      string
	fn         func([]backend.Record)
}

// Fake はbackend.AuthClientとbackend.Storeのメモリ実装。
// スナップショットは変更を行ったゴルーチン上でロックの外から同期的に配信する。
type Fake struct {
	mu sync.Mutex

	accounts  map[string]account
	current   *model.Identity
	authSubs  map[int]func(*model.Identity)
	nextSubID int

	records map[string]map[string]map[string]any
	order   map[string][]string
	queries map[int]*query
	// released は解除済みの購読。遅延配信のテストに使う。
	released []*query
	nextID   int
	hold     bool

	// 以下が設定されている場合、対応する操作はこのエラーを返す。
	SignInErr  error
	SignOutErr error
	UpdateErr  error
	DeleteErr  error
	// QueryErr が設定されている場合、ライブクエリはスナップショットの代わりにonErrorを呼ぶ。
	QueryErr error

	// UpdateCalls とDeleteCalls は呼び出し回数。
	UpdateCalls int
	DeleteCalls int
}

var (
	_ backend.AuthClient = (*Fake)(nil)
	_ backend.Store      = (*Fake)(nil)
)

// New は空のFakeを生成する。
func New() *Fake {
	return &Fake{
		accounts: make(map[string]account),
		authSubs: make(map[int]func(*model.Identity)),
		records:  make(map[string]map[string]map[string]any),
		order:    make(map[string][]string),
		queries:  make(map[int]*query),
	}
}

// AddUser はアカウントを登録し、そのIdentityを返す。
func (f *Fake) AddUser(id, email, password string) model.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	ident := model.Identity{ID: id, Email: email}
	f.accounts[email] = account{password: password, identity: ident}
	return ident
}

// HoldSnapshots がtrueの間はスナップショットを配信せず、Flushまで保留する。
func (f *Fake) HoldSnapshots(hold bool) {
	f.mu.Lock()
	f.hold = hold
	f.mu.Unlock()
}

// --- AuthClient ---

// SignIn は登録済みアカウントと照合する。
func (f *Fake) SignIn(ctx context.Context, email, password string) (*model.Identity, error) {
	f.mu.Lock()
	if f.SignInErr != nil {
		err := f.SignInErr
		f.mu.Unlock()
		return nil, err
	}
	acc, ok := f.accounts[email]
	if !ok || acc.password != password {
		f.mu.Unlock()
		return nil, model.NewInvalidCredentialsError()
	}
	ident := acc.identity
	f.current = &ident
	subs := f.authSubscribers()
	f.mu.Unlock()

	for _, fn := range subs {
		fn(copyIdentity(&ident))
	}
	return copyIdentity(&ident), nil
}

// SignOut は現在のセッションを終了する。
func (f *Fake) SignOut(ctx context.Context) error {
	f.mu.Lock()
	if f.SignOutErr != nil {
		err := f.SignOutErr
		f.mu.Unlock()
		return err
	}
	f.current = nil
	subs := f.authSubscribers()
	f.mu.Unlock()

	for _, fn := range subs {
		fn(nil)
	}
	return nil
}

// Expire はサーバー側でセッションが失効した状態を再現する。
func (f *Fake) Expire() {
	f.mu.Lock()
	f.current = nil
	subs := f.authSubscribers()
	f.mu.Unlock()

	for _, fn := range subs {
		fn(nil)
	}
}

// SubscribeAuthState は現在の状態を即座に通知し、以後の変化を通知する。
func (f *Fake) SubscribeAuthState(fn func(*model.Identity)) backend.Unsubscribe {
	f.mu.Lock()
	f.nextSubID++
	id := f.nextSubID
	f.authSubs[id] = fn
	current := copyIdentity(f.current)
	f.mu.Unlock()

	fn(current)

	return func() {
		f.mu.Lock()
		delete(f.authSubs, id)
		f.mu.Unlock()
	}
}

// CurrentIdentity は現在のIdentityを返す。
func (f *Fake) CurrentIdentity() *model.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copyIdentity(f.current)
}

func (f *Fake) authSubscribers() []func(*model.Identity) {
	subs := make([]func(*model.Identity), 0, len(f.authSubs))
	for i := 1; i <= f.nextSubID; i++ {
		if fn, ok := f.authSubs[i]; ok {
			subs = append(subs, fn)
		}
	}
	return subs
}

func copyIdentity(id *model.Identity) *model.Identity {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}

// --- Store ---

// Insert はドキュメントを追加し、該当オーナーの購読者に配信する。
func (f *Fake) Insert(collection, id string, fields map[string]any) {
	f.mu.Lock()
	coll, ok := f.records[collection]
	if !ok {
		coll = make(map[string]map[string]any)
		f.records[collection] = coll
	}
	if _, exists := coll[id]; !exists {
		f.order[collection] = append(f.order[collection], id)
	}
	coll[id] = copyFields(fields)
	owner, _ := fields[model.FieldOwnerID].(string)
	f.mu.Unlock()

	f.notify(collection, owner)
}

// InsertMessage はメッセージを追加する。
func (f *Fake) InsertMessage(m *model.Message) {
	f.Insert(model.MessagesCollection, m.ID, m.Fields())
}

// Record はドキュメントのフィールドを返す。存在しない場合はfalseを返す。
func (f *Fake) Record(collection, id string) (map[string]any, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fields, ok := f.records[collection][id]
	if !ok {
		return nil, false
	}
	return copyFields(fields), true
}

// QueryByOwner はowner_idでフィルタしたライブクエリを返す。
func (f *Fake) QueryByOwner(collection, ownerID string) backend.LiveQuery {
	return &liveQuery{fake: f, collection: collection, owner: ownerID}
}

// UpdateFields はドキュメントのフィールドを部分更新する。
func (f *Fake) UpdateFields(ctx context.Context, collection, id string, fields map[string]any) error {
	f.mu.Lock()
	f.UpdateCalls++
	if f.UpdateErr != nil {
		err := f.UpdateErr
		f.mu.Unlock()
		return err
	}
	doc, ok := f.records[collection][id]
	if !ok {
		f.mu.Unlock()
		return model.NewMessageNotFoundError(id)
	}
	for k, v := range fields {
		doc[k] = v
	}
	owner, _ := doc[model.FieldOwnerID].(string)
	f.mu.Unlock()

	f.notify(collection, owner)
	return nil
}

// DeleteRecord はドキュメントを削除する。存在しない場合も成功とする。
func (f *Fake) DeleteRecord(ctx context.Context, collection, id string) error {
	f.mu.Lock()
	f.DeleteCalls++
	if f.DeleteErr != nil {
		err := f.DeleteErr
		f.mu.Unlock()
		return err
	}
	doc, ok := f.records[collection][id]
	if !ok {
		f.mu.Unlock()
		return nil
	}
	delete(f.records[collection], id)
	ids := f.order[collection]
	for i, v := range ids {
		if v == id {
			f.order[collection] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	owner, _ := doc[model.FieldOwnerID].(string)
	f.mu.Unlock()

	f.notify(collection, owner)
	return nil
}

// ActiveQueries は購読中のライブクエリ数を返す。
func (f *Fake) ActiveQueries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

// Flush は全ての購読に現在のスナップショットを配信する。
func (f *Fake) Flush() {
	f.mu.Lock()
	type delivery struct {
		fn      func([]backend.Record)
		records []backend.Record
	}
	var deliveries []delivery
	for i := 1; i <= f.nextID; i++ {
		if q, ok := f.queries[i]; ok {
			deliveries = append(deliveries, delivery{fn: q.fn, records: f.snapshot(q.collection, q.owner)})
		}
	}
	f.mu.Unlock()

	for _, d := range deliveries {
		d.fn(d.records)
	}
}

// Inject はオーナーの購読にrecordsをそのまま配信する。フィルタは行わない。
func (f *Fake) Inject(ownerID string, records []backend.Record) {
	f.mu.Lock()
	var fns []func([]backend.Record)
	for i := 1; i <= f.nextID; i++ {
		if q, ok := f.queries[i]; ok && q.owner == ownerID {
			fns = append(fns, q.fn)
		}
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(records)
	}
}

// DeliverToReleased は解除済みの購読にrecordsを配信する。
// 解除後に届いた遅延スナップショットを再現する。
func (f *Fake) DeliverToReleased(records []backend.Record) {
	f.mu.Lock()
	released := append([]*query(nil), f.released...)
	f.mu.Unlock()

	for _, q := range released {
		q.fn(records)
	}
}

func (f *Fake) notify(collection, owner string) {
	f.mu.Lock()
	if f.hold {
		f.mu.Unlock()
		return
	}
	var fns []func([]backend.Record)
	var snapshot []backend.Record
	for i := 1; i <= f.nextID; i++ {
		q, ok := f.queries[i]
		if !ok || q.collection != collection || q.owner != owner {
			continue
		}
		if snapshot == nil {
			snapshot = f.snapshot(collection, owner)
		}
		fns = append(fns, q.fn)
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(snapshot)
	}
}

// snapshot は挿入順でオーナーのドキュメントを返す。呼び出し元がロックを保持する。
func (f *Fake) snapshot(collection, owner string) []backend.Record {
	records := make([]backend.Record, 0)
	for _, id := range f.order[collection] {
		fields := f.records[collection][id]
		if o, _ := fields[model.FieldOwnerID].(string); o != owner {
			continue
		}
		records = append(records, backend.Record{ID: id, Fields: copyFields(fields)})
	}
	return records
}

func copyFields(fields map[string]any) map[string]any {
	c := make(map[string]any, len(fields))
	for k, v := range fields {
		c[k] = v
	}
	return c
}

type liveQuery struct {
	fake       *Fake
	collection string
	owner      string
}

// Subscribe は購読を登録する。保留中でなければ現在のスナップショットを即座に配信する。
// QueryErrが設定されている場合は購読を登録せずonErrorを呼ぶ。
func (q *liveQuery) Subscribe(fn func([]backend.Record), onError func(error)) backend.Unsubscribe {
	f := q.fake

	f.mu.Lock()
	if err := f.QueryErr; err != nil {
		f.mu.Unlock()
		if onError != nil {
			onError(err)
		}
		return func() {}
	}
	f.nextID++
	sub := &query{id: f.nextID, collection: q.collection, owner: q.owner, fn: fn}
	f.queries[sub.id] = sub
	hold := f.hold
	var initial []backend.Record
	if !hold {
		initial = f.snapshot(q.collection, q.owner)
	}
	f.mu.Unlock()

	if !hold {
		fn(initial)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.queries, sub.id)
			f.released = append(f.released, sub)
			f.mu.Unlock()
		})
	}
}
