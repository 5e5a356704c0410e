/*
Package efm implements a secure document packaging and multi-channel
delivery pipeline for Norwegian public-sector message exchange.

# Overview

An integration point accepts business documents from a local
case-management system, wraps them in a signed and encrypted container,
picks the delivery channel the receiver is registered for, and drives
transmission through a durable retry queue until the receiver's
application receipt confirms delivery.

# Package Structure

	github.com/janhelge/efm-integrasjonspunkt/pkg/exchange  - Submission entry point
	github.com/janhelge/efm-integrasjonspunkt/pkg/envelope  - Routing envelope and SBD header
	github.com/janhelge/efm-integrasjonspunkt/pkg/packaging - Signed, encrypted document container
	github.com/janhelge/efm-integrasjonspunkt/pkg/channel   - Channel model and receiver-based selection
	github.com/janhelge/efm-integrasjonspunkt/pkg/delivery  - Per-channel delivery strategies
	github.com/janhelge/efm-integrasjonspunkt/pkg/queue     - Durable retry queue and scheduler
	github.com/janhelge/efm-integrasjonspunkt/pkg/receipt   - Delivery receipt reconciliation
	github.com/janhelge/efm-integrasjonspunkt/pkg/transport - HTTPS transport with TLS 1.2/1.3
	github.com/janhelge/efm-integrasjonspunkt/pkg/discovery - ELMA registry endpoint lookup

Supporting packages under internal/ provide YAML configuration,
signing key management (PEM files or PKCS#11), and the MongoDB queue
store.

# Quick Start

	cfg, err := config.Load("integrasjonspunkt.yaml")
	if err != nil {
		log.Fatal(err)
	}

	provider, err := keystore.NewProvider(&cfg.Signing)
	if err != nil {
		log.Fatal(err)
	}
	signer, err := provider.GetSigner(ctx, cfg.Organization.Number)
	if err != nil {
		log.Fatal(err)
	}

	store, err := mongodb.NewStore(ctx, &mongodb.Config{
		URI:      cfg.Storage.MongoDB.URI,
		Database: cfg.Storage.MongoDB.Database,
	})
	if err != nil {
		log.Fatal(err)
	}

	scheduler := queue.NewScheduler(store, strategies, nil, logger)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	service, err := exchange.NewService(exchange.Config{
		Selector:  selector,
		Lookup:    registry,
		Packager:  packaging.NewPackager(signer),
		Scheduler: scheduler,
	})
	if err != nil {
		log.Fatal(err)
	}

	result, err := service.Submit(ctx, exchange.Submission{
		SenderID:     cfg.Organization.Number,
		ReceiverID:   "974720760",
		DocumentType: envelope.TypeArkivmelding,
		Files:        files,
	})
*/
package efm
