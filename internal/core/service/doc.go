// Package service provides the guest-token services.
//
// Services contain the business logic and orchestrate domain models. They
// define interfaces for their storage dependencies (TokenStore,
// CampaignStore) so stores can be swapped and faked in tests.
//
// This package contains:
//
//   - Validator: the fixed-order validation pipeline and the RSVP
//     completion hook
//   - Issuer: bulk token issuance for a campaign's guest list
//
// Services are safe for concurrent use.
package service
