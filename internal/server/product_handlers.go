package server

import (
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/hashicorp/go-multierror"
	"io"
	"marketplace-api/internal/product"
	"marketplace-api/internal/storage"
	"mime/multipart"
	"net/http"
	"time"
)

type productForm struct {
	Name           string   `form:"name" binding:"required"`
	Description    string   `form:"description" binding:"required"`
	Category       string   `form:"category" binding:"required"`
	Price          *float64 `form:"price" binding:"required"`
	PurchasingDate string   `form:"purchasingDate" binding:"required"`
	Thumbnail      *string  `form:"thumbnail"`
}

var purchasingDateLayouts = []string{time.RFC3339, "2006-01-02"}

func (f productForm) fields() (storage.ProductFields, bool) {
	pf := storage.ProductFields{
		Name:        f.Name,
		Price:       *f.Price,
		Category:    f.Category,
		Description: f.Description,
	}
	for _, layout := range purchasingDateLayouts {
		if t, err := time.Parse(layout, f.PurchasingDate); err == nil {
			pf.PurchasingDate = t
			return pf, true
		}
	}
	return pf, false
}

// bindProduct reads the fields and the "images" files of a multipart product request
// it answers the request itself and returns false when they are unusable
func (h *handler) bindProduct(c *gin.Context) (productForm, storage.ProductFields, []*multipart.FileHeader, bool) {
	var form productForm
	if err := c.ShouldBindWith(&form, binding.FormMultipart); err != nil {
		h.bindError(c, err)
		return form, storage.ProductFields{}, nil, false
	}

	fields, ok := form.fields()
	if !ok {
		abort(c, http.StatusUnprocessableEntity, "Invalid purchasing date")
		return form, fields, nil, false
	}

	files, err := multipartFiles(c, "images")
	if err != nil {
		h.bindError(c, err)
		return form, fields, nil, false
	}
	if len(files) > storage.MaxProductImages {
		abort(c, http.StatusUnprocessableEntity, "Image files cannot be more than five")
		return form, fields, nil, false
	}
	for _, fh := range files {
		if !isImage(fh) {
			abort(c, http.StatusUnprocessableEntity, "Invalid file type, files must be an image")
			return form, fields, nil, false
		}
	}

	return form, fields, files, true
}

// openAll opens uploaded files, the returned func closes every opened one
func openAll(files []*multipart.FileHeader) ([]io.Reader, func() error, error) {
	readers := make([]io.Reader, 0, len(files))
	closers := make([]io.Closer, 0, len(files))
	closeAll := func() error {
		var result error
		for _, c := range closers {
			if err := c.Close(); err != nil {
				result = multierror.Append(result, err)
			}
		}
		return result
	}

	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			_ = closeAll()
			return nil, nil, err
		}
		readers = append(readers, f)
		closers = append(closers, f)
	}

	return readers, closeAll, nil
}

func paging(c *gin.Context) (product.Paging, bool) {
	pageNo, ok := queryInt(c, "pageNo", 1)
	if !ok {
		return product.Paging{}, false
	}
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		return product.Paging{}, false
	}
	return product.Paging{PageNo: pageNo, Limit: limit}, true
}

// listProduct handles HTTP requests on "/product/list" endpoint
func (h *handler) listProduct(c *gin.Context) {
	_, fields, files, ok := h.bindProduct(c)
	if !ok {
		return
	}

	readers, closeAll, err := openAll(files)
	if err != nil {
		h.bindError(c, err)
		return
	}
	defer closeAll()

	if _, err := h.products.Create(c.Request.Context(), currentUser(c).ID, fields, readers); err != nil {
		h.respondError(c, err)
		return
	}

	message(c, http.StatusCreated, "Added new product")
}

func (h *handler) updateProduct(c *gin.Context) {
	form, fields, files, ok := h.bindProduct(c)
	if !ok {
		return
	}

	readers, closeAll, err := openAll(files)
	if err != nil {
		h.bindError(c, err)
		return
	}
	defer closeAll()

	_, err = h.products.Update(c.Request.Context(), c.Param("productId"), currentUser(c).ID, fields, form.Thumbnail, readers)
	if err != nil {
		h.respondError(c, err)
		return
	}

	message(c, http.StatusOK, "Product updated")
}

func (h *handler) deleteProduct(c *gin.Context) {
	if err := h.products.Delete(c.Request.Context(), c.Param("productId"), currentUser(c).ID); err != nil {
		h.respondError(c, err)
		return
	}

	message(c, http.StatusOK, "Product removed successfully")
}

func (h *handler) deleteProductImage(c *gin.Context) {
	err := h.products.DeleteImage(c.Request.Context(), c.Param("productId"), currentUser(c).ID, c.Param("imageId"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	message(c, http.StatusOK, "Image deleted successfully")
}

func (h *handler) productDetail(c *gin.Context) {
	d, err := h.products.Detail(c.Request.Context(), c.Param("productId"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"product": d})
}

func (h *handler) productsByCategory(c *gin.Context) {
	p, ok := paging(c)
	if !ok {
		abort(c, http.StatusUnprocessableEntity, "Invalid page")
		return
	}

	products, err := h.products.ByCategory(c.Request.Context(), c.Param("category"), p)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (h *handler) latestProducts(c *gin.Context) {
	products, err := h.products.Latest(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"products": products})
}

// listings returns the caller's products
func (h *handler) listings(c *gin.Context) {
	p, ok := paging(c)
	if !ok {
		abort(c, http.StatusUnprocessableEntity, "Invalid page")
		return
	}

	products, err := h.products.Listings(c.Request.Context(), currentUser(c), p)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"products": products})
}
