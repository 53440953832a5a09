// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 EscapePod SDK Contributors

//go:build integration

package integration

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/cyb3rdog/escapepod-sdk-go/internal/certs"
	"github.com/cyb3rdog/escapepod-sdk-go/internal/logging"
	"github.com/cyb3rdog/escapepod-sdk-go/internal/proxytest"
	"github.com/cyb3rdog/escapepod-sdk-go/pkg/escapepod"
	"github.com/cyb3rdog/escapepod-sdk-go/pkg/proxyerr"
)

// inbox collects ProcessIntent events.
type inbox struct {
	mu  sync.Mutex
	got []escapepod.ProcessIntent
}

func (b *inbox) HandleEvent(_ context.Context, e escapepod.Event) error {
	if pi, ok := e.Data.(escapepod.ProcessIntent); ok {
		b.mu.Lock()
		b.got = append(b.got, pi)
		b.mu.Unlock()
	}
	return nil
}

func (b *inbox) intents() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.got))
	for _, pi := range b.got {
		out = append(out, pi.IntentName)
	}
	return out
}

func newClient(srv *proxytest.Server, opts ...escapepod.Option) *escapepod.Client {
	opts = append([]escapepod.Option{escapepod.WithLogger(logging.Discard())}, opts...)
	client, err := escapepod.New(srv.Addr(), opts...)
	Expect(err).NotTo(HaveOccurred())
	return client
}

func waitForStream(client *escapepod.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	Expect(client.WaitForEventStream(ctx)).To(Succeed())
}

var _ = Describe("EscapePod client", func() {
	var srv *proxytest.Server

	BeforeEach(func() {
		srv = proxytest.New()
		Expect(srv.Start()).To(Succeed())
		DeferCleanup(srv.Stop)
	})

	Describe("connecting", func() {
		It("subscribes to the event stream and reports the proxy version", func() {
			client := newClient(srv, escapepod.WithKeepAlive(30))
			Expect(client.Connect(5 * time.Second)).To(Succeed())
			DeferCleanup(client.Disconnect)
			waitForStream(client)

			Expect(client.Subscribed()).To(BeTrue())
			status, err := client.GetStatus(context.Background()).Result()
			Expect(err).NotTo(HaveOccurred())
			Expect(status.GetVersion()).To(Equal(proxytest.DefaultVersion))
			Expect(srv.KeepAlives()).To(Equal([]int64{30}))
		})

		It("unsubscribes on disconnect and can connect again", func() {
			client := newClient(srv)
			Expect(client.Connect(5 * time.Second)).To(Succeed())
			waitForStream(client)
			Expect(srv.Subscribers()).To(Equal(1))

			client.Disconnect()
			Eventually(srv.Subscribers).Should(BeZero())
			Expect(client.Subscribed()).To(BeFalse())

			Expect(client.Connect(5 * time.Second)).To(Succeed())
			DeferCleanup(client.Disconnect)
			waitForStream(client)
			Expect(client.Subscribed()).To(BeTrue())
		})

		It("rejects a proxy outside the version constraint", func() {
			old := proxytest.New(proxytest.WithVersion("0.9.1"))
			Expect(old.Start()).To(Succeed())
			DeferCleanup(old.Stop)

			client := newClient(old, escapepod.WithProxyVersion("^1.0"))
			err := client.Connect(5 * time.Second)
			Expect(proxyerr.HasCode(err, proxyerr.CodeInvalidVersion)).To(BeTrue(), "got %v", err)
		})

		It("connects over TLS", func() {
			ca, err := certs.GenerateCA("integration")
			Expect(err).NotTo(HaveOccurred())
			cert, err := certs.GenerateServerCert(ca)
			Expect(err).NotTo(HaveOccurred())

			secure := proxytest.New(proxytest.WithTLS(cert.ServerTLS()))
			Expect(secure.Start()).To(Succeed())
			DeferCleanup(secure.Stop)

			client := newClient(secure, escapepod.WithTLS(ca.ClientTLS()))
			Expect(client.Connect(5 * time.Second)).To(Succeed())
			DeferCleanup(client.Disconnect)
			waitForStream(client)
		})
	})

	Describe("events", func() {
		It("delivers pushed intents in order", func() {
			box := &inbox{}
			client := newClient(srv)
			Expect(client.Subscribe(box, escapepod.ProcessIntentEvent)).NotTo(BeNil())
			Expect(client.Connect(5 * time.Second)).To(Succeed())
			DeferCleanup(client.Disconnect)
			waitForStream(client)

			for _, name := range []string{"intent_a", "intent_b", "intent_c"} {
				srv.PushIntent(name, "heard "+name)
			}
			Eventually(box.intents).Should(Equal([]string{"intent_a", "intent_b", "intent_c"}))
		})

		It("keeps delivering when a callback fails", func() {
			box := &inbox{}
			client := newClient(srv)
			failing := escapepod.HandlerFunc(func(context.Context, escapepod.Event) error {
				return proxyerr.Proxy("callback", "boom")
			})
			Expect(client.Subscribe(failing, escapepod.ProcessIntentEvent)).NotTo(BeNil())
			Expect(client.Subscribe(box, escapepod.ProcessIntentEvent)).NotTo(BeNil())
			Expect(client.Connect(5 * time.Second)).To(Succeed())
			DeferCleanup(client.Disconnect)
			waitForStream(client)

			srv.PushIntent("intent_a", "one")
			srv.PushIntent("intent_b", "two")
			Eventually(box.intents).Should(Equal([]string{"intent_a", "intent_b"}))
		})
	})

	Describe("intents", func() {
		It("creates, lists and deletes intents", func() {
			client := newClient(srv)
			Expect(client.Connect(5 * time.Second)).To(Succeed())
			DeferCleanup(client.Disconnect)

			factory, err := client.Intents()
			Expect(err).NotTo(HaveOccurred())
			ctx := context.Background()

			id, err := factory.CreateIntent(ctx, escapepod.IntentDefinition{Name: "weather", Keywords: "weather, forecast"}).Result()
			Expect(err).NotTo(HaveOccurred())
			Expect(id).NotTo(BeEmpty())

			list, err := factory.SelectIntents(ctx, `{"intent":"intent_weather"}`).Result()
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(HaveLen(1))
			Expect(list[0].ID).To(Equal(id))
			Expect(list[0].Utterances()).To(Equal([]string{"weather", "forecast"}))

			n, err := factory.DeleteIntent(ctx, "intent_weather").Result()
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(int64(1)))
			Expect(srv.Intents()).To(BeEmpty())
		})

		It("returns futures in async mode", func() {
			client := newClient(srv, escapepod.WithAsync(true))
			Expect(client.Connect(5 * time.Second)).To(Succeed())
			DeferCleanup(client.Disconnect)

			factory, err := client.Intents()
			Expect(err).NotTo(HaveOccurred())

			fut := factory.CreateIntent(context.Background(), escapepod.IntentDefinition{Name: "lights", Keywords: "lights"})
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			id, err := fut.Wait(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(id).NotTo(BeEmpty())
		})
	})
})
