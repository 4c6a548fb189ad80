// Package containers starts the external services integration tests run
// against: a MySQL server for the repositories, a Mosquitto broker for the
// MQTT client and router, and an ntfy server for chat delivery.
//
// Packages usually share one container per test binary through TestMain:
//
//	var broker *containers.MosquittoContainer
//
//	func TestMain(m *testing.M) {
//	    ctx := context.Background()
//	    var err error
//	    broker, err = containers.NewMosquittoContainer(ctx, nil)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    code := m.Run()
//	    _ = broker.Terminate(ctx)
//	    os.Exit(code)
//	}
//
// Files using this package carry the integration build tag:
//
//	//go:build integration
//
// and run with:
//
//	go test -tags=integration ./...
package containers
