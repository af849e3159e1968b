// Package mailvault provides the client-side cryptography layer of an
// end-to-end encrypted mail service.
//
// It covers type-model-driven entity encryption and decryption, session key
// resolution across the three key-distribution schemes (direct symmetric
// group wrap, legacy RSA bucket keys, hybrid post-quantum envelopes built on
// X25519 and ML-KEM-768), and outbound bucket-key wrapping for internal
// recipients. The encrypted local search index sits on top of this layer in
// the search subpackage, with pluggable persistence under storage.
//
// Basic usage:
//
//	client, err := mailvault.New(mailvault.Collaborators{
//	    Entities:       entities,
//	    PublicKeys:     publicKeys,
//	    PermissionKeys: permissionKeys,
//	    SessionKeys:    sessionKeys,
//	    UserFacade:     userFacade,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	mail, err := client.LoadDecrypted(ctx, mailModel, mailvault.IDTuple{
//	    ListID:    inboxListID,
//	    ElementID: mailID,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Subject:", mail["subject"])
//
// The transport, key registry, and user key ring are application-owned and
// injected through the Collaborators interfaces.
package mailvault
