// internal/loop/loop.go
// Package loop serializa todo o estado do núcleo numa única goroutine.
// Goroutines de transporte, timers e buscas HTTP nunca mexem em estado:
// elas postam closures aqui.
package loop

import (
	"context"
	"errors"
)

var ErrStopped = errors.New("loop stopped")

type Loop struct {
	tasks chan func()
	done  chan struct{}
}

func New(buffer int) *Loop {
	if buffer <= 0 {
		buffer = 1024
	}
	return &Loop{
		tasks: make(chan func(), buffer),
		done:  make(chan struct{}),
	}
}

// Run executa as tarefas em ordem de chegada até o ctx ser cancelado.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-l.tasks:
			fn()
		}
	}
}

// Post enfileira fn. Nunca chame de dentro do loop com a fila cheia.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case <-l.done:
		return false
	case l.tasks <- fn:
		return true
	}
}

// Do posta fn e espera terminar. Não pode ser chamado de dentro do loop.
// Depois de enfileirada, a tarefa só é pulada se o ctx já tiver expirado
// quando ela chegar à frente da fila; nesse caso Do devolve ctx.Err() e fn
// não roda. Se fn rodou, Do devolve nil mesmo com o ctx expirado.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	finished := make(chan struct{})
	var skipped error
	ok := l.Post(func() {
		defer close(finished)
		if err := ctx.Err(); err != nil {
			skipped = err
			return
		}
		fn()
	})
	if !ok {
		return ErrStopped
	}
	select {
	case <-finished:
		return skipped
	case <-l.done:
		// Run pode ter executado a tarefa antes de parar
		select {
		case <-finished:
			return skipped
		default:
			return ErrStopped
		}
	}
}

// Done fecha quando Run retorna.
func (l *Loop) Done() <-chan struct{} { return l.done }
