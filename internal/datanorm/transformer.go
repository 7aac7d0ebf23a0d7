package datanorm

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ignite/product-ingest/internal/catalog"
	"github.com/ignite/product-ingest/internal/pkg/ingesterr"
	"github.com/ignite/product-ingest/internal/pkg/logger"
	"github.com/ignite/product-ingest/internal/pkg/runctx"
)

const (
	DefaultSource    = "shein"
	DefaultCurrency  = "SAR"
	DefaultSKUPrefix = "SHEIN"

	untitledName = "Untitled Product"

	// colorAttrID marks the color entry of a SKU's sale attributes.
	colorAttrID = 87
)

// attributeKinds maps supplier attribute ids to a semantic kind. Ids not
// listed here are plain text.
var attributeKinds = map[int]catalog.AttributeKind{
	27:  catalog.KindColor,
	90:  catalog.KindSize,
	62:  catalog.KindMaterial,
	101: catalog.KindStyle,
	39:  catalog.KindMaterial,
	66:  catalog.KindNeckline,
	109: catalog.KindType,
	128: catalog.KindOccasion,
}

// Options tune the output of a Transformer.
type Options struct {
	Source    string
	Currency  string
	SKUPrefix string
	Now       func() time.Time
}

// Transformer maps raw supplier records onto catalog.Product.
type Transformer struct {
	opts      Options
	validator *Validator
}

func NewTransformer(opts Options) *Transformer {
	if opts.Source == "" {
		opts.Source = DefaultSource
	}
	if opts.Currency == "" {
		opts.Currency = DefaultCurrency
	}
	if opts.SKUPrefix == "" {
		opts.SKUPrefix = DefaultSKUPrefix
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Transformer{opts: opts, validator: NewValidator()}
}

// Result is the outcome of transforming one record. Product is nil when
// the record was skipped by validation; Issues then says why.
type Result struct {
	Product  *catalog.Product
	Warnings []string
	// Quality carries Warnings as a classified error; nil when there are none.
	Quality *ingesterr.DataQualityWarning
	Issues  []*ingesterr.ValidationIssue
}

// TransformBatch transforms every record, collecting successes, failures,
// warnings and validation skips. Per-record errors never escape.
func (t *Transformer) TransformBatch(run runctx.Run, records []any) *Outcome {
	log := run.Logger()
	start := time.Now()
	out := &Outcome{}

	log.Info("Starting batch transformation", "input_count", len(records))

	for idx, v := range records {
		rec, _ := AsRaw(v)
		res, err := t.safeTransform(run, rec)
		if err != nil {
			out.Failures = append(out.Failures, failureEntry(idx, rec, err))
			log.Error("Failed to transform product", "index", idx, "product_id", recordID(rec), "error", err)
			continue
		}
		if res.Product == nil {
			out.Skipped = append(out.Skipped, skipEntry(idx, rec, res.Issues))
			continue
		}
		out.Successes = append(out.Successes, *res.Product)
		var details map[string]any
		if res.Quality != nil {
			details = ingesterr.ToMap(res.Quality)
		}
		for _, w := range res.Warnings {
			out.Warnings = append(out.Warnings, Entry{
				Index:    idx,
				RecordID: res.Product.ID,
				Message:  w,
				Details:  details,
			})
		}
	}

	log.Info("Batch transformation complete",
		"success_count", out.SuccessCount(),
		"failure_count", out.FailureCount(),
		"skipped_count", out.SkippedCount(),
		"warning_count", out.WarningCount(),
		"duration_ms", time.Since(start).Milliseconds())
	return out
}

// safeTransform converts a panic anywhere in Transform into a failure.
func (t *Transformer) safeTransform(run runctx.Run, rec Raw) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{}
			err = ingesterr.NewTransformationFailure(recordID(rec), "", fmt.Errorf("unexpected error: %v", r))
		}
	}()
	return t.Transform(run, rec)
}

// Transform validates and maps one record. A record that fails validation
// yields a Result without a Product and a nil error.
func (t *Transformer) Transform(run runctx.Run, rec Raw) (Result, error) {
	log := run.Logger()

	ok, issues := t.validator.Validate(rec)
	if !ok {
		for _, is := range issues {
			log.Warn("Validation failed", "error", is.Message(), "field", is.Field)
		}
		return Result{Issues: issues}, nil
	}

	info, _ := rec.Path("info", "productInfo")
	id := info.Str("goods_id")
	details := objects(listOrNil(info.MapOrEmpty("productDescriptionInfo"), "productDetails"))

	var p catalog.Product
	p.ID = id

	steps := []struct {
		field string
		fn    func()
	}{
		{"name", func() { p.Name = t.extractName(info, details) }},
		{"sku", func() { p.SKU = t.extractSKU(info) }},
		{"categories", func() { p.Categories = extractCategories(info) }},
		{"attributes", func() { p.Attributes = extractAttributes(details) }},
		{"variants", func() { p.Variants = t.extractVariants(log, info) }},
		{"images", func() { p.Images = extractImages(info) }},
		{"description", func() { p.Description = extractDescription(details) }},
	}
	for _, s := range steps {
		if err := guard(id, s.field, s.fn); err != nil {
			err.With("correlation_id", run.CorrelationID)
			return Result{}, err
		}
	}

	p.Metadata = catalog.Metadata{
		Source:     t.opts.Source,
		SourceID:   id,
		ImportedAt: t.opts.Now(),
	}
	if rel := info.Str("productRelationID"); rel != "" {
		p.Metadata.ProductRelationID = &rel
	}

	res := Result{Product: &p, Warnings: t.qualityIssues(p)}
	if len(res.Warnings) > 0 {
		res.Quality = ingesterr.NewDataQualityWarning(id, res.Warnings)
		log.Warn("Data quality issues", "product_id", id, "issues", res.Warnings)
	}
	return res, nil
}

func guard(productID, field string, fn func()) (err *ingesterr.TransformationFailure) {
	defer func() {
		if r := recover(); r != nil {
			cause, ok := r.(error)
			if !ok {
				cause = fmt.Errorf("%v", r)
			}
			err = ingesterr.NewTransformationFailure(productID, field, cause)
		}
	}()
	fn()
	return nil
}

func (t *Transformer) qualityIssues(p catalog.Product) []string {
	var issues []string

	if utf8.RuneCountInString(p.Name.EN) < 5 {
		issues = append(issues, "Product name is too short or missing English translation")
	}
	if p.SKU == "" || strings.HasPrefix(p.SKU, t.opts.SKUPrefix+"-") {
		issues = append(issues, "SKU appears to be auto-generated")
	}

	if len(p.Variants) == 0 {
		issues = append(issues, "No variants found, using default variant")
	} else {
		allZero := true
		for _, v := range p.Variants {
			if v.Stock != 0 {
				allZero = false
				break
			}
		}
		if allZero {
			issues = append(issues, "All variants have zero stock")
		}
	}

	if len(p.Images) == 0 {
		issues = append(issues, "No images found for product")
	}

	zeroPrice := 0
	for _, v := range p.Variants {
		if v.Price.Amount == 0 {
			zeroPrice++
		}
	}
	if zeroPrice > 0 {
		issues = append(issues, fmt.Sprintf("%d variants have zero price", zeroPrice))
	}
	return issues
}

func (t *Transformer) extractSKU(info Raw) string {
	if sn := info.Str("goods_sn"); sn != "" {
		return sn
	}
	return fmt.Sprintf("%s-%s", t.opts.SKUPrefix, info.StrOr("goods_id", "UNKNOWN"))
}

func (t *Transformer) extractName(info Raw, details []Raw) catalog.Text {
	name := info.Str("goods_name")
	if name == "" {
		name = untitledName
	}
	ar := ""
	if IsArabic(name) {
		ar = name
	}
	return catalog.NewText(englishName(name, details), ar)
}

// englishName composes brand + style + color + type from detail
// attributes, falls back to the first five ASCII tokens of the display
// name, and finally to the display name itself.
func englishName(name string, details []Raw) string {
	find := func(attr string) string {
		for _, d := range details {
			if d.Str("attr_name_en") == attr {
				return d.Str("attr_value_en")
			}
		}
		return ""
	}
	style, color, typ := find("Style"), find("Color"), find("Type")
	if style != "" || color != "" || typ != "" {
		var parts []string
		for _, p := range []string{leadingBrand(name), style, color, typ} {
			if p != "" {
				parts = append(parts, p)
			}
		}
		return strings.Join(parts, " ")
	}

	if tokens := asciiTokens(name, 5); len(tokens) > 0 {
		return strings.Join(tokens, " ")
	}
	return name
}

func extractDescription(details []Raw) *catalog.Text {
	if len(details) == 0 {
		return nil
	}
	var en, ar []string
	for _, d := range details {
		if n, v := d.Str("attr_name_en"), d.Str("attr_value_en"); n != "" && v != "" {
			en = append(en, n+": "+v)
		}
		if n, v := d.Str("attr_name"), d.Str("attr_value"); n != "" && v != "" {
			ar = append(ar, n+": "+v)
		}
	}
	if len(en) == 0 {
		return nil
	}
	desc := catalog.NewText(strings.Join(en, "\n"), strings.Join(ar, "\n"))
	return &desc
}

// extractCategories returns one node per cateInfos entry, sorted by level.
// Ties keep id order so the output does not depend on map iteration.
func extractCategories(info Raw) []catalog.Category {
	cates, ok := info.Map("cateInfos")
	if !ok || len(cates) == 0 {
		return []catalog.Category{}
	}

	ids := make([]string, 0, len(cates))
	for id := range cates {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]catalog.Category, 0, len(ids))
	for _, id := range ids {
		c, ok := AsRaw(cates[id])
		if !ok {
			continue
		}
		parents, _ := c.List("parent_ids")

		en := c.StrOr("category_name_en", c.Str("category_name"))
		node := catalog.Category{
			ID:     id,
			Name:   catalog.NewText(en, c.Str("category_name")),
			Slug:   Slugify(c.StrOr("category_url_name", en)),
			Level:  len(parents),
			IsLeaf: isLeafFlag(c["is_leaf"]),
		}
		if len(parents) > 0 {
			if pid, ok := scalarString(parents[len(parents)-1]); ok && pid != "" {
				node.ParentID = &pid
			}
		}
		out = append(out, node)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Level < out[j].Level })
	return out
}

func extractAttributes(details []Raw) []catalog.Attribute {
	out := []catalog.Attribute{}
	seen := make(map[string]bool)

	for _, d := range details {
		attrID := d.Str("attr_id")
		valueID := d.StrOr("attr_value_id", attrID)
		key := attrID + ":" + valueID
		if seen[key] {
			continue
		}
		seen[key] = true

		nameEN := d.StrOr("attr_name_en", d.Str("attr_name"))
		valueEN := d.StrOr("attr_value_en", d.Str("attr_value"))
		if nameEN == "" || valueEN == "" {
			continue
		}

		kind := catalog.KindText
		if n, ok := d.Int("attr_id"); ok {
			if k, known := attributeKinds[n]; known {
				kind = k
			}
		}
		out = append(out, catalog.Attribute{
			ID:    valueID,
			Name:  catalog.NewText(nameEN, d.Str("attr_name")),
			Value: catalog.NewText(valueEN, d.Str("attr_value")),
			Kind:  kind,
		})
	}
	return out
}

// extractVariants prefers skuList, then attrSizeList.allSizeSkuList. With
// neither, or when every entry fails to parse, one default variant is
// returned so a product always has at least one.
func (t *Transformer) extractVariants(log *logger.Logger, info Raw) []catalog.Variant {
	items, _ := info.List("skuList")
	if len(items) == 0 {
		items, _ = info.MapOrEmpty("attrSizeList").List("allSizeSkuList")
	}
	if len(items) == 0 {
		return []catalog.Variant{t.defaultVariant(info)}
	}

	colorImages := info.MapOrEmpty("allColorDetailImages")
	var out []catalog.Variant
	for _, item := range objects(items) {
		v, err := t.parseSKUItem(item, colorImages)
		if err != nil {
			raw, _ := json.Marshal(item)
			log.Warn("Failed to parse SKU item", "error", err, "sku_item", logger.Truncate(string(raw)))
			continue
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return []catalog.Variant{t.defaultVariant(info)}
	}
	return out
}

func (t *Transformer) parseSKUItem(item Raw, colorImages Raw) (v catalog.Variant, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parse sku item: %v", r)
		}
	}()

	skuCode := item.Str("sku_code")
	goodsID := item.Str("goods_id")

	priceInfo, ok := item.Map("price")
	if !ok || len(priceInfo) == 0 {
		priceInfo = item.MapOrEmpty("priceInfo")
	}
	sale := priceInfo.MapOrEmpty("salePrice")
	retail := priceInfo.MapOrEmpty("retailPrice")

	amount := ParsePrice(sale["amount"])
	original := ParsePrice(retail["amount"])
	usd := ParsePrice(sale["usdAmount"])

	price := catalog.Money{Amount: amount, Currency: t.opts.Currency}
	if original > amount {
		price.OriginalAmount = &original
	}
	if usd != 0 {
		price.USDAmount = &usd
	}
	if d := priceInfo.First("discountValue", "unit_discount"); d != nil {
		pct, err := parseDiscount(d)
		if err != nil {
			return catalog.Variant{}, err
		}
		if pct != 0 {
			price.DiscountPercent = &pct
		}
	}

	images := []string{}
	if goodsID != "" {
		list, _ := colorImages.List(goodsID)
		for _, img := range objects(list) {
			if u := img.Str("origin_image"); u != "" {
				images = append(images, NormalizeImageURL(u))
			}
		}
	}

	id := skuCode
	if id == "" {
		id = goodsID
	}
	if id == "" {
		id = syntheticVariantID(item)
	}

	return catalog.Variant{
		ID:     id,
		SKU:    skuCode,
		Color:  colorFromSaleAttrs(item),
		Size:   sizeFromSaleAttrs(item),
		Price:  price,
		Stock:  parseStock(item["stock"]),
		Images: images,
	}, nil
}

func (t *Transformer) defaultVariant(info Raw) catalog.Variant {
	return catalog.Variant{
		ID:     "default-" + info.StrOr("goods_id", "unknown"),
		SKU:    info.Str("goods_sn"),
		Price:  catalog.Money{Amount: 0, Currency: t.opts.Currency},
		Stock:  0,
		Images: []string{},
	}
}

func syntheticVariantID(item Raw) string {
	raw, _ := json.Marshal(item)
	h := fnv.New64a()
	h.Write(raw)
	return fmt.Sprintf("variant-%x", h.Sum64())
}

func saleAttrs(item Raw) []Raw {
	l, _ := item.List("sku_sale_attr")
	return objects(l)
}

func isColorAttr(a Raw) bool {
	n, ok := a.Int("attr_id")
	return ok && n == colorAttrID
}

func colorFromSaleAttrs(item Raw) *catalog.Color {
	for _, a := range saleAttrs(item) {
		if isColorAttr(a) {
			return &catalog.Color{Name: a.Str("attr_value_name"), Code: a.Str("attr_value_id")}
		}
	}
	return nil
}

func sizeFromSaleAttrs(item Raw) *string {
	for _, a := range saleAttrs(item) {
		if isColorAttr(a) {
			continue
		}
		name := strings.ToLower(a.Str("attr_name"))
		if strings.Contains(name, "size") || strings.Contains(name, "مقاس") {
			s := a.Str("attr_value_name")
			return &s
		}
	}
	return nil
}

// extractImages gathers the gallery (first kept image is main) and then the
// per-variant lists, deduplicated by normalized URL. Sort order increases
// by one per kept image.
func extractImages(info Raw) []catalog.Image {
	out := []catalog.Image{}
	seen := make(map[string]bool)

	gallery, _ := info.MapOrEmpty("currentSkcImgInfo").List("skcImages")
	for _, v := range gallery {
		u, _ := v.(string)
		u = NormalizeImageURL(u)
		if u == "" || seen[u] {
			continue
		}
		seen[u] = true
		role := catalog.RoleGallery
		if len(out) == 0 {
			role = catalog.RoleMain
		}
		out = append(out, catalog.Image{URL: u, Role: role, SortOrder: len(out)})
	}

	byVariant := info.MapOrEmpty("allColorDetailImages")
	variantIDs := make([]string, 0, len(byVariant))
	for id := range byVariant {
		variantIDs = append(variantIDs, id)
	}
	sort.Strings(variantIDs)

	for _, vid := range variantIDs {
		list, ok := byVariant.List(vid)
		if !ok {
			continue
		}
		for _, img := range list {
			m, ok := AsRaw(img)
			if !ok {
				continue
			}
			u := NormalizeImageURL(m.Str("origin_image"))
			if u == "" || seen[u] {
				continue
			}
			seen[u] = true
			variantID := vid
			out = append(out, catalog.Image{URL: u, Role: catalog.RoleGallery, VariantID: &variantID, SortOrder: len(out)})
		}
	}
	return out
}

func listOrNil(r Raw, key string) []any {
	l, _ := r.List(key)
	return l
}

// recordID digs out info.productInfo.goods_id without trusting the shape.
func recordID(rec Raw) string {
	info, ok := rec.Path("info", "productInfo")
	if !ok {
		return "unknown"
	}
	return info.StrOr("goods_id", "unknown")
}

func failureEntry(idx int, rec Raw, err error) Entry {
	e := Entry{Index: idx, RecordID: recordID(rec), Message: err.Error(), Details: ingesterr.ToMap(err)}
	var tf *ingesterr.TransformationFailure
	if errors.As(err, &tf) {
		e.RecordID = tf.ProductID
	}
	return e
}

func skipEntry(idx int, rec Raw, issues []*ingesterr.ValidationIssue) Entry {
	e := Entry{Index: idx, RecordID: recordID(rec), Message: "validation failed"}
	if len(issues) > 0 {
		e.Message = issues[0].Message()
		fields := make([]string, 0, len(issues))
		for _, is := range issues {
			fields = append(fields, is.Field)
		}
		e.Details = map[string]any{"fields": fields}
	}
	return e
}
