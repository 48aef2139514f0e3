// Package notify はコントローラーの状態変化を購読者に通知する。
package notify

import "sync"

type observer[T any] struct {
	id uint64
	fn func(T)
}

// Notifier は登録順に購読者へ値を配信する。ゼロ値で使用できる。
// 購読者の呼び出しはロックの外で行うため、購読者からSubscribeやcancelを呼んでもよい。
type Notifier[T any] struct {
	mu        sync.Mutex
	nextID    uint64
	observers []observer[T]
}

// Subscribe は購読者を登録し、登録を解除する関数を返す。
// 解除関数は複数回呼び出しても安全。
func (n *Notifier[T]) Subscribe(fn func(T)) (cancel func()) {
	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.observers = append(n.observers, observer[T]{id: id, fn: fn})
	n.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { n.remove(id) })
	}
}

func (n *Notifier[T]) remove(id uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, o := range n.observers {
		if o.id == id {
			n.observers = append(n.observers[:i:i], n.observers[i+1:]...)
			return
		}
	}
}

// Publish は全購読者にvを配信する。
func (n *Notifier[T]) Publish(v T) {
	n.mu.Lock()
	// ロック中に一覧を取り出し、配信は解放後に行う
	observers := n.observers
	n.mu.Unlock()

	for _, o := range observers {
		o.fn(v)
	}
}

func (n *Notifier[T]) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.observers)
}
