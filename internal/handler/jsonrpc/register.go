package jsonrpc

import (
	"github.com/Bidon15/licensesale/internal/executor"
	"github.com/Bidon15/licensesale/internal/sale"
	"github.com/Bidon15/licensesale/internal/token"
)

// Method names.
const (
	MethodPublicClaim        = "sale_publicClaim"
	MethodWhitelistClaim     = "sale_whitelistClaim"
	MethodGetPublicConfig    = "sale_getPublicConfig"
	MethodGetWhitelistConfig = "sale_getWhitelistConfig"
	MethodMintedPerTier      = "sale_mintedPerTier"
	MethodMintedPerUser      = "sale_mintedPerUser"
	MethodSettings           = "sale_settings"
	MethodLicenseTransfer    = "license_transfer"
	MethodLicenseTokenURI    = "license_tokenURI"
	MethodLicenseOwnerOf     = "license_ownerOf"
	MethodLicenseBalanceOf   = "license_balanceOf"
	MethodTokenApprove       = "token_approve"
	MethodTokenBalanceOf     = "token_balanceOf"
	MethodTokenAllowance     = "token_allowance"
)

// Services are the components the methods run against.
type Services struct {
	Executor *executor.Executor
	Engine   *sale.Engine
	Registry *token.Registry
	Book     *token.ERC20Book
}

// Register registers every sale, license and token method on h.
func Register(h *Handler, s Services) {
	saleHandler := NewSaleHandler(s.Executor, s.Engine)
	h.RegisterMethod(MethodPublicClaim, saleHandler.HandlePublicClaim)
	h.RegisterMethod(MethodWhitelistClaim, saleHandler.HandleWhitelistClaim)
	h.RegisterMethod(MethodGetPublicConfig, saleHandler.HandleGetPublicConfig)
	h.RegisterMethod(MethodGetWhitelistConfig, saleHandler.HandleGetWhitelistConfig)
	h.RegisterMethod(MethodMintedPerTier, saleHandler.HandleMintedPerTier)
	h.RegisterMethod(MethodMintedPerUser, saleHandler.HandleMintedPerUser)
	h.RegisterMethod(MethodSettings, saleHandler.HandleSettings)

	licenseHandler := NewLicenseHandler(s.Executor, s.Registry)
	h.RegisterMethod(MethodLicenseTransfer, licenseHandler.HandleTransfer)
	h.RegisterMethod(MethodLicenseTokenURI, licenseHandler.HandleTokenURI)
	h.RegisterMethod(MethodLicenseOwnerOf, licenseHandler.HandleOwnerOf)
	h.RegisterMethod(MethodLicenseBalanceOf, licenseHandler.HandleBalanceOf)

	tokenHandler := NewTokenHandler(s.Executor, s.Book, s.Engine)
	h.RegisterMethod(MethodTokenApprove, tokenHandler.HandleApprove)
	h.RegisterMethod(MethodTokenBalanceOf, tokenHandler.HandleBalanceOf)
	h.RegisterMethod(MethodTokenAllowance, tokenHandler.HandleAllowance)
}
